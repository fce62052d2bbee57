package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/upstars/corporate-discounts/config"
	"github.com/upstars/corporate-discounts/internal/adapters/s3store"
	"github.com/upstars/corporate-discounts/internal/data"
	"github.com/upstars/corporate-discounts/internal/ports"
)

// BuildDocumentStore selects the configuration document backend.
//
//nolint:ireturn // the backend is chosen at runtime.
func BuildDocumentStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (ports.DocumentStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var bucket *s3store.Store
	if cfg.Backend.UsesS3() {
		var err error
		bucket, err = s3store.New(ctx, s3store.Config{
			Endpoint:        cfg.S3.Endpoint,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Region:          cfg.S3.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 store: %w", err)
		}
	}

	switch cfg.Backend {
	case config.StoreBackendS3:
		logger.InfoContext(ctx, "document store ready", "backend", cfg.Backend, "bucket", cfg.S3.Bucket)
		return bucket, nil
	case config.StoreBackendS3WithFile:
		logger.InfoContext(ctx, "document store ready",
			"backend", cfg.Backend, "bucket", cfg.S3.Bucket, "fallback_root", cfg.FileRoot)
		return &data.FallbackDocumentStore{
			Primary:   bucket,
			Secondary: data.NewFileDocumentStore(cfg.FileRoot),
			Logger:    logger,
		}, nil
	default:
		logger.InfoContext(ctx, "document store ready", "backend", cfg.Backend, "root", cfg.FileRoot)
		return data.NewFileDocumentStore(cfg.FileRoot), nil
	}
}

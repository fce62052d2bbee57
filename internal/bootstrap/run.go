package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/upstars/corporate-discounts/config"
	"golang.org/x/sync/errgroup"
)

// ServerConfig groups inputs for RunServer.
type ServerConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// RunServer connects infrastructure, wires services and serves the API
// until ctx is cancelled.
func RunServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Config == nil {
		return errors.New("config is required")
	}
	appCfg := cfg.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := appCfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := BuildDocumentStore(ctx, appCfg.Store, logger)
	if err != nil {
		return err
	}

	db, err := connectPostgresIfNeeded(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if cerr := db.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close database failed", "error", cerr)
			}
		}()
	}

	deps := &ServiceDeps{Config: appCfg, Store: store, DB: db, Logger: logger}
	if redisClient := connectRedisIfNeeded(ctx, appCfg, logger); redisClient != nil {
		deps.Redis = redisClient
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	services, err := NewServices(ctx, deps)
	if err != nil {
		return err
	}

	srv := NewHTTPServer(&HTTPServerConfig{Config: appCfg, Services: services, Logger: logger})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		services.LoginLimiter.Run(gctx, appCfg.RateLimit.SweepInterval)
		return nil
	})
	g.Go(func() error {
		services.MutateLimiter.Run(gctx, appCfg.RateLimit.SweepInterval)
		return nil
	})
	g.Go(func() error {
		return ServeHTTP(gctx, srv, appCfg.HTTP.ShutdownTimeout, logger)
	})
	return g.Wait()
}

func connectPostgresIfNeeded(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, error) {
	if !cfg.NeedsPostgres() {
		return nil, nil
	}
	db, err := ConnectDB(ctx, DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if !cfg.Postgres.RunMigrationsOnStart {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		return db, nil
	}
	if err := RunMigrations(ctx, db, logger); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return db, nil
}

// connectRedisIfNeeded returns nil when the cache is disabled or Redis is
// unreachable; the allow-list is then read from its source on every login.
func connectRedisIfNeeded(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) *redis.Client {
	if !cfg.NeedsRedis() {
		return nil
	}
	client, err := ConnectRedis(ctx, DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
	if err != nil {
		logger.WarnContext(ctx, "allow-list cache disabled", "error", err)
		return nil
	}
	return client
}

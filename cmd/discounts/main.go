package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/upstars/corporate-discounts/config"
	"github.com/upstars/corporate-discounts/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	return bootstrap.RunServer(ctx, bootstrap.ServerConfig{
		Config: &cfg,
		Logger: logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting corporate discounts API",
		"addr", cfg.HTTP.Addr,
		"dev", cfg.IsDev,
		"assertion_mode", cfg.Auth.AssertionMode,
		"allowlist_source", cfg.Auth.AllowlistSource,
		"store_backend", cfg.Store.Backend,
		"token_ttl", cfg.Auth.TokenTTL,
	)
}

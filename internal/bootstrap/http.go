package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/upstars/corporate-discounts/config"
	httpx "github.com/upstars/corporate-discounts/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// NewHTTPServer builds the API server. The caller starts and stops it.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	if appCfg.HTTP.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", appCfg.HTTP.CompressionLevel)
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Auth:             cfg.Services.Auth,
		Config:           cfg.Services.Config,
		LoginLimiter:     cfg.Services.LoginLimiter,
		MutateLimiter:    cfg.Services.MutateLimiter,
		ClientIPHeader:   appCfg.HTTP.ClientIPHeader,
		AllowedOrigins:   appCfg.HTTP.AllowedOrigins,
		CSP:              appCfg.HTTP.ContentSecurityPolicy,
		Compression:      appCfg.HTTP.CompressionEnabled,
		CompressionLevel: appCfg.HTTP.CompressionLevel,
		Readiness:        cfg.Services.Readiness,
		Logger:           logger,
	})

	// Guard against empty addr to avoid listening on Go default
	addr := appCfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ServeHTTP runs srv until it fails or ctx is cancelled, then shuts it down
// within timeout.
func ServeHTTP(ctx context.Context, srv *http.Server, timeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.InfoContext(ctx, "HTTP server stopped")
	return nil
}

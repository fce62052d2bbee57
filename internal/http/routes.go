package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth          AuthServiceInterface // Required
	Config        ConfigService        // Required
	LoginLimiter  RateLimiter          // Required: budget for POST /api/login
	MutateLimiter RateLimiter          // Required: budget for POST /api/save-config

	ClientIPHeader   string                    // Optional: trusted client IP header
	AllowedOrigins   []string                  // Optional: CORS origins; empty disables CORS headers
	CSP              string                    // Optional: Content-Security-Policy override
	Compression      bool                      // Optional: gzip JSON responses
	CompressionLevel int                       // Optional: gzip level when Compression is set
	Readiness        map[string]ReadinessCheck // Optional: enables GET /readyz
	Logger           *slog.Logger              // Optional
}

// NewRouter creates the HTTP handler with its middleware chain:
// Recover, Logging, SecurityHeaders, CORS, optional Compression, then the mux.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mux := http.NewServeMux()
	authHandlers := &AuthHandlers{Svc: services.Auth, Logger: logger}
	configHandlers := &ConfigHandlers{Svc: services.Config, Logger: logger}

	loginLimit := RateLimit(RateLimitOptions{
		Limiter:  services.LoginLimiter,
		IPHeader: services.ClientIPHeader,
		Message:  msgTooManyLogins,
		Logger:   logger,
	})
	mutateLimit := RateLimit(RateLimitOptions{
		Limiter:  services.MutateLimiter,
		IPHeader: services.ClientIPHeader,
		Logger:   logger,
	})
	requireEditor := RequireToken(services.Auth, domainauth.RoleEditor, logger)

	mux.Handle("POST /api/login", loginLimit(http.HandlerFunc(authHandlers.Login)))
	mux.Handle("GET /api/verify", http.HandlerFunc(authHandlers.Verify))
	mux.Handle("GET /api/load-config", http.HandlerFunc(configHandlers.Load))
	mux.Handle("POST /api/save-config", Chain(http.HandlerFunc(configHandlers.Save), mutateLimit, requireEditor))

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if len(services.Readiness) > 0 {
		mux.Handle("GET /readyz", readyHandler(services.Readiness, logger))
	}

	mws := []Middleware{
		Recover(logger),
		Logging(logger),
		SecurityHeaders(services.CSP),
		CORS(services.AllowedOrigins),
	}
	if services.Compression {
		mws = append(mws, Compression(CompressionConfig{Level: services.CompressionLevel, Logger: logger}))
	}
	return Chain(mux, mws...)
}

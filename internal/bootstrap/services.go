package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/upstars/corporate-discounts/config"
	"github.com/upstars/corporate-discounts/internal/adapters/assertion"
	"github.com/upstars/corporate-discounts/internal/adapters/oidc"
	redisadapter "github.com/upstars/corporate-discounts/internal/adapters/redis"
	"github.com/upstars/corporate-discounts/internal/data"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	httpx "github.com/upstars/corporate-discounts/internal/http"
	"github.com/upstars/corporate-discounts/internal/ports"
	"github.com/upstars/corporate-discounts/internal/service"
	"github.com/upstars/corporate-discounts/internal/service/ratelimit"
	"github.com/upstars/corporate-discounts/internal/service/sessiontoken"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth          *service.AuthService
	Config        *service.ConfigDocumentService
	LoginLimiter  *ratelimit.Limiter
	MutateLimiter *ratelimit.Limiter
	Readiness     map[string]httpx.ReadinessCheck
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig     // Required
	Store  ports.DocumentStore   // Required: configuration document backend
	DB     *sql.DB               // Optional: required when the allow-list lives in Postgres
	Redis  redis.UniversalClient // Optional: enables the allow-list cache
	Clock  clock.Clock           // Optional: defaults to the wall clock
	Logger *slog.Logger          // Optional
}

// NewServices wires the allow-list, the gate, the token codec and the HTTP-facing services.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.Store == nil {
		return ServiceContainer{}, errors.New("config and document store are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	readiness := map[string]httpx.ReadinessCheck{
		"store": storeCheck(deps.Store, cfg.Store.ConfigKey),
	}

	allowlist, err := buildAllowlist(cfg, deps, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	if deps.DB != nil {
		readiness["postgres"] = deps.DB.PingContext
	}

	var invalidator ports.AllowlistInvalidator
	if deps.Redis != nil && cfg.Auth.AllowlistCacheTTL > 0 {
		cache, cerr := redisadapter.NewAllowlistCache(redisadapter.AllowlistCacheOptions{
			Client: deps.Redis,
			Source: allowlist,
			TTL:    cfg.Auth.AllowlistCacheTTL,
			Logger: logger,
		})
		if cerr != nil {
			return ServiceContainer{}, fmt.Errorf("allow-list cache: %w", cerr)
		}
		allowlist, invalidator = cache, cache
		readiness["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
		logger.InfoContext(ctx, "allow-list cache enabled", "ttl", cfg.Auth.AllowlistCacheTTL)
	}

	gate, err := service.NewGate(service.GateOptions{
		AllowedDomain: cfg.Auth.AllowedDomain,
		Allowlist:     allowlist,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("gate: %w", err)
	}

	codec, err := sessiontoken.NewCodec(sessiontoken.Config{
		Secret: []byte(cfg.Auth.TokenSecret),
		TTL:    cfg.Auth.TokenTTL,
		Clock:  clk,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("token codec: %w", err)
	}

	decoder, err := buildDecoder(ctx, cfg.Auth, clk)
	if err != nil {
		return ServiceContainer{}, err
	}

	auth, err := service.NewAuthService(service.AuthServiceOptions{
		Decoder: decoder,
		Gate:    gate,
		Tokens:  codec,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("auth service: %w", err)
	}

	configSvc, err := service.NewConfigDocumentService(service.ConfigDocumentServiceOptions{
		Store:       deps.Store,
		Key:         cfg.Store.ConfigKey,
		Invalidator: invalidator,
		Clock:       clk,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("config service: %w", err)
	}

	return ServiceContainer{
		Auth:   auth,
		Config: configSvc,
		LoginLimiter: ratelimit.New(ratelimit.Options{
			Limit:  cfg.RateLimit.Login,
			Window: cfg.RateLimit.Window,
			Clock:  clk,
		}),
		MutateLimiter: ratelimit.New(ratelimit.Options{
			Limit:  cfg.RateLimit.Mutation,
			Window: cfg.RateLimit.Window,
			Clock:  clk,
		}),
		Readiness: readiness,
	}, nil
}

//nolint:ireturn // the allow-list source is chosen at runtime.
func buildAllowlist(cfg *config.AppConfig, deps *ServiceDeps, logger *slog.Logger) (ports.AllowlistReader, error) {
	switch cfg.Auth.AllowlistSource {
	case config.AllowlistSourcePostgres:
		if deps.DB == nil {
			return nil, errors.New("ALLOWLIST_SOURCE=postgres requires a database connection")
		}
		logger.Info("allow-list source", "source", cfg.Auth.AllowlistSource)
		return data.NewAuthorizedUserRepo(deps.DB), nil
	default:
		logger.Info("allow-list source", "source", config.AllowlistSourceDocument, "key", cfg.Store.ConfigKey)
		return data.NewDocumentAllowlist(deps.Store, cfg.Store.ConfigKey), nil
	}
}

//nolint:ireturn // the decoder is chosen at runtime.
func buildDecoder(ctx context.Context, cfg config.AuthConfig, clk clock.Clock) (ports.AssertionDecoder, error) {
	if cfg.AssertionMode != config.AssertionModeOIDC {
		return assertion.NewDecoder(clk), nil
	}
	v, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
		Issuer:   cfg.OIDCIssuer,
		ClientID: cfg.GoogleClientID,
		Clock:    clk,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc verifier: %w", err)
	}
	return v, nil
}

// storeCheck treats a missing document as ready: the store answered.
func storeCheck(store ports.DocumentStore, key string) httpx.ReadinessCheck {
	return func(ctx context.Context) error {
		if _, err := store.Get(ctx, key); err != nil && !apperrors.IsNotFound(err) {
			return err
		}
		return nil
	}
}

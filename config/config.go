package config

import (
	"errors"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Session tokens, assertion decoding and the allow-list
//   - database.go: Postgres and Redis connections
//   - http.go: HTTP server and rate limiting
//   - store.go: Configuration document storage
//   - client.go: Admin CLI session settings
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP      HTTPConfig
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	Store StoreConfig

	Client ClientConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.RateLimit.Sanitize()
	c.Auth.Sanitize()
	c.Client.Sanitize()

	c.detectDevMode()
}

// ValidateServer reports settings the API server cannot start without.
func (c *AppConfig) ValidateServer() error {
	return errors.Join(c.Auth.Validate(), c.Store.Validate())
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// NeedsPostgres reports whether any enabled component reads from Postgres.
func (c *AppConfig) NeedsPostgres() bool {
	return c.Auth.AllowlistSource == AllowlistSourcePostgres
}

// NeedsRedis reports whether any enabled component uses Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Auth.AllowlistCacheTTL > 0
}

package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// ClientIPHeader names the proxy header trusted for the caller's address.
	// Leave empty to key rate limits on the socket peer only.
	ClientIPHeader string `env:"HTTP_CLIENT_IP_HEADER" envDefault:"CF-Connecting-IP"`

	// AllowedOrigins lists origins allowed to call the API from a browser.
	AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envSeparator:","`

	// ContentSecurityPolicy overrides the default policy header.
	ContentSecurityPolicy string `env:"HTTP_CONTENT_SECURITY_POLICY"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// CompressionEnabled enables gzip compression for JSON responses.
	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`

	// CompressionLevel is the gzip compression level (1-9).
	// Default is 6 (standard gzip default).
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	// Clamp compression level to valid gzip range (1-9)
	if h.CompressionLevel < 1 {
		h.CompressionLevel = 1
	}
	if h.CompressionLevel > 9 {
		h.CompressionLevel = 9
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
}

// RateLimitConfig contains per-client request budgets.
type RateLimitConfig struct {
	// Window is the fixed window every budget is counted over.
	Window time.Duration `env:"WINDOW" envDefault:"60s"`

	// Login is the number of login attempts per client per window.
	Login int `env:"LOGIN" envDefault:"5"`

	// Mutation is the number of configuration writes per client per window.
	Mutation int `env:"MUTATION" envDefault:"10"`

	// SweepInterval controls how often expired buckets are dropped.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

// Sanitize applies guardrails to rate limit values.
func (r *RateLimitConfig) Sanitize() {
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	if r.Login < 1 {
		r.Login = 5
	}
	if r.Mutation < 1 {
		r.Mutation = 10
	}
	if r.SweepInterval <= 0 {
		r.SweepInterval = 5 * time.Minute
	}
}

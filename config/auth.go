package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinTokenSecretLength is the shortest accepted HS256 signing secret.
const MinTokenSecretLength = 32

// AssertionMode selects how identity assertions presented at login are decoded.
type AssertionMode string

const (
	// AssertionModeStructural decodes the assertion payload without checking its signature.
	AssertionModeStructural AssertionMode = "structural"
	// AssertionModeOIDC verifies the assertion against the identity provider's published keys.
	AssertionModeOIDC AssertionMode = "oidc"
)

// UnmarshalText implements encoding.TextUnmarshaler for AssertionMode.
func (m *AssertionMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "structural", "oidc":
		*m = AssertionMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AssertionMode: %q (valid options: structural, oidc)", v)
	}
}

// AllowlistSource selects where the allow-list is read from.
type AllowlistSource string

const (
	// AllowlistSourceDocument reads the authorizedUsers array of the configuration document.
	AllowlistSourceDocument AllowlistSource = "document"
	// AllowlistSourcePostgres reads the authorized_users table.
	AllowlistSourcePostgres AllowlistSource = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for AllowlistSource.
func (s *AllowlistSource) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "document", "postgres":
		*s = AllowlistSource(v)
		return nil
	default:
		return fmt.Errorf("invalid AllowlistSource: %q (valid options: document, postgres)", v)
	}
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// TokenSecret signs session tokens. Required for the API server.
	TokenSecret string `env:"TOKEN_SECRET"`

	// TokenTTL is the lifetime of an issued session token.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// AllowedDomain is the email domain every signed-in account must belong to.
	AllowedDomain string `env:"AUTH_ALLOWED_DOMAIN" envDefault:"upstars.com"`

	// AssertionMode determines how login credentials are decoded.
	AssertionMode AssertionMode `env:"ASSERTION_MODE" envDefault:"structural"`

	// GoogleClientID is the expected audience when AssertionMode=oidc.
	GoogleClientID string `env:"GOOGLE_CLIENT_ID"`

	// OIDCIssuer overrides the issuer used for key discovery.
	OIDCIssuer string `env:"OIDC_ISSUER"`

	// AllowlistSource determines where authorized users are read from.
	AllowlistSource AllowlistSource `env:"ALLOWLIST_SOURCE" envDefault:"document"`

	// AllowlistCacheTTL enables a Redis read-through cache of the allow-list. 0 disables it.
	AllowlistCacheTTL time.Duration `env:"ALLOWLIST_CACHE_TTL" envDefault:"1m"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.AllowedDomain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a.AllowedDomain), "@"))
	if a.TokenTTL <= 0 {
		a.TokenTTL = 24 * time.Hour
	}
	if a.AllowlistCacheTTL < 0 {
		a.AllowlistCacheTTL = 0
	}
}

// Validate reports missing or inconsistent auth settings.
func (a *AuthConfig) Validate() error {
	var errs []error
	if len(a.TokenSecret) < MinTokenSecretLength {
		errs = append(errs, fmt.Errorf("TOKEN_SECRET must be at least %d bytes", MinTokenSecretLength))
	}
	if a.AllowedDomain == "" {
		errs = append(errs, errors.New("AUTH_ALLOWED_DOMAIN is required"))
	}
	if a.AssertionMode == AssertionModeOIDC && a.GoogleClientID == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID is required when ASSERTION_MODE=oidc"))
	}
	return errors.Join(errs...)
}

package config

import (
	"fmt"
	"strings"
	"time"
)

// PrompterMode selects the identity provider used by the admin CLI.
type PrompterMode string

const (
	// PrompterModeDev mints local assertions for a configured identity.
	PrompterModeDev PrompterMode = "dev"
	// PrompterModeOIDC signs in through the OIDC provider and renews with a refresh token.
	PrompterModeOIDC PrompterMode = "oidc"
)

// UnmarshalText implements encoding.TextUnmarshaler for PrompterMode.
func (p *PrompterMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "dev", "oidc":
		*p = PrompterMode(v)
		return nil
	default:
		return fmt.Errorf("invalid PrompterMode: %q (valid options: dev, oidc)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://127.0.0.1:8085/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid email profile"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig controls the dev identity minted by the admin CLI.
type DevAuthConfig struct {
	Email string `env:"EMAIL" envDefault:"dev@upstars.com"`
	Name  string `env:"NAME"  envDefault:"Dev User"`
	// Outcome is how silent renewal prompts resolve: credential, not_displayed, skipped or dismissed.
	Outcome string `env:"OUTCOME" envDefault:"credential"`
}

// ClientConfig groups admin CLI session settings.
type ClientConfig struct {
	// APIURL is the base URL of the discounts API.
	APIURL string `env:"DISCOUNTS_API_URL" envDefault:"http://localhost:8080"`

	// StateDir holds the persisted session. Defaults to the user config directory.
	StateDir string `env:"CLIENT_STATE_DIR"`

	// RenewalBuffer is how long before expiry the session is renewed.
	RenewalBuffer time.Duration `env:"CLIENT_RENEWAL_BUFFER" envDefault:"5m"`

	// RenewalTimeout bounds a silent renewal prompt.
	RenewalTimeout time.Duration `env:"CLIENT_RENEWAL_TIMEOUT" envDefault:"10s"`

	Prompter PrompterMode  `env:"CLIENT_PROMPTER" envDefault:"dev"`
	OAuth    OAuthConfig   `envPrefix:"CLIENT_OAUTH_"`
	DevAuth  DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize applies guardrails to client configuration values.
func (c *ClientConfig) Sanitize() {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		c.APIURL = "http://localhost:8080"
	}
	if c.RenewalBuffer < 0 {
		c.RenewalBuffer = 0
	}
	if c.RenewalTimeout <= 0 {
		c.RenewalTimeout = 10 * time.Second
	}
}

package devauth

// Package devauth provides a config-driven identity provider for local
// development. It mints identity assertions signed with a throwaway key; the
// structural assertion decoder accepts them, so the full login path runs
// without a real identity provider.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/upstars/corporate-discounts/internal/ports"
)

// DefaultAssertionTTL is the lifetime of minted assertions.
const DefaultAssertionTTL = time.Hour

var (
	_ ports.AuthProvider   = (*Provider)(nil)
	_ ports.SilentPrompter = (*Provider)(nil)
)

// Config controls the dev auth provider behavior.
// Email is required; everything else has a default.
type Config struct {
	Email        string
	Name         string
	Picture      string
	AssertionTTL time.Duration       // default DefaultAssertionTTL
	Outcome      ports.PromptOutcome // silent renewal outcome, default PromptCredential
	Clock        clock.Clock
}

// Provider implements ports.AuthProvider and ports.SilentPrompter for local development.
// Begin returns a local callback URL with locally generated state and nonce;
// Exchange ignores the code and returns a freshly minted assertion.
type Provider struct {
	email, name, picture string
	ttl                  time.Duration
	clock                clock.Clock
	key                  []byte

	mu      sync.Mutex
	outcome ports.PromptOutcome
	prompts int
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.Email) == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	ttl := cfg.AssertionTTL
	if ttl <= 0 {
		ttl = DefaultAssertionTTL
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("dev auth: generate key: %w", err)
	}
	return &Provider{
		email:   strings.TrimSpace(cfg.Email),
		name:    cfg.Name,
		picture: cfg.Picture,
		ttl:     ttl,
		clock:   clk,
		key:     key,
		outcome: cfg.Outcome,
	}, nil
}

// SetOutcome changes how subsequent silent prompts resolve.
func (p *Provider) SetOutcome(o ports.PromptOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcome = o
}

// Prompts returns how many silent prompts were requested.
func (p *Provider) Prompts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	redirect := in.RedirectURL
	if redirect == "" {
		redirect = "/auth/callback"
	}
	return redirect + "?code=dev&state=" + state, state, nonce, nil
}

// Exchange ignores the code and returns a freshly minted assertion. There is no refresh token.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (ports.Credentials, error) {
	raw, err := p.Mint()
	if err != nil {
		return ports.Credentials{}, err
	}
	return ports.Credentials{IDToken: raw}, nil
}

// Prompt resolves with the configured outcome, minting a credential when that outcome is PromptCredential.
func (p *Provider) Prompt(ctx context.Context) (ports.PromptResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.PromptResult{}, err
	}
	p.mu.Lock()
	p.prompts++
	outcome := p.outcome
	p.mu.Unlock()

	if outcome != ports.PromptCredential {
		return ports.PromptResult{Outcome: outcome, Reason: "dev auth configured outcome"}, nil
	}
	raw, err := p.Mint()
	if err != nil {
		return ports.PromptResult{}, err
	}
	return ports.PromptResult{Outcome: ports.PromptCredential, Credential: raw}, nil
}

// Mint returns a new identity assertion for the configured user.
func (p *Provider) Mint() (string, error) {
	now := p.clock.Now()
	claims := jwt.MapClaims{
		"iss":   "devauth",
		"email": p.email,
		"iat":   now.Unix(),
		"exp":   now.Add(p.ttl).Unix(),
	}
	if p.name != "" {
		claims["name"] = p.name
	}
	if p.picture != "" {
		claims["picture"] = p.picture
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("dev auth: sign assertion: %w", err)
	}
	return raw, nil
}

// ParseOutcome converts a configuration string into a prompt outcome.
func ParseOutcome(s string) (ports.PromptOutcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "credential":
		return ports.PromptCredential, nil
	case "not_displayed", "not-displayed":
		return ports.PromptNotDisplayed, nil
	case "skipped":
		return ports.PromptSkipped, nil
	case "dismissed":
		return ports.PromptDismissed, nil
	default:
		return 0, fmt.Errorf("unknown prompt outcome %q", s)
	}
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}

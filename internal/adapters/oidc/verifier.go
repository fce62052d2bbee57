package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/upstars/corporate-discounts/internal/adapters/assertion"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/ports"
)

// GoogleIssuer is the issuer of Google Sign-In identity tokens.
const GoogleIssuer = "https://accounts.google.com"

var _ ports.AssertionDecoder = (*Verifier)(nil)

// Verifier decodes identity tokens after checking their signature, issuer,
// audience and expiry against the provider's published keys.
type Verifier struct {
	verifier *gooidc.IDTokenVerifier
}

// VerifierConfig holds configuration for NewVerifier.
type VerifierConfig struct {
	Issuer     string // defaults to GoogleIssuer; a discovery document URL is also accepted
	ClientID   string
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
	Clock      clock.Clock  // Optional
}

// NewVerifier discovers the issuer's keys and returns a Verifier for ClientID.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	op, err := discover(ctx, cfg.Issuer, cfg.HTTPClient)
	if err != nil {
		return nil, err
	}
	return &Verifier{verifier: op.Verifier(verifierConfig(cfg.ClientID, cfg.Clock))}, nil
}

// NewStaticVerifier builds a Verifier over a fixed key set without discovery.
func NewStaticVerifier(issuer, clientID string, keys gooidc.KeySet, clk clock.Clock) *Verifier {
	return &Verifier{verifier: gooidc.NewVerifier(issuer, keys, verifierConfig(clientID, clk))}
}

func verifierConfig(clientID string, clk clock.Clock) *gooidc.Config {
	if clk == nil {
		clk = clock.New()
	}
	return &gooidc.Config{ClientID: clientID, Now: clk.Now}
}

func discover(ctx context.Context, discoveryURL string, httpClient *http.Client) (*gooidc.Provider, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	issuer := discoveryURL
	if issuer == "" {
		issuer = GoogleIssuer
	}
	issuer = strings.TrimSuffix(issuer, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")

	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	return op, nil
}

// Decode verifies raw and maps its claims onto an assertion.
func (v *Verifier) Decode(ctx context.Context, raw string) (domainauth.IdentityAssertion, error) {
	a, _, err := v.verify(ctx, raw)
	return a, err
}

func (v *Verifier) verify(ctx context.Context, raw string) (domainauth.IdentityAssertion, string, error) {
	if strings.TrimSpace(raw) == "" {
		return domainauth.IdentityAssertion{}, "", apperrors.New(apperrors.ErrCodeMalformedAssertion, "credential is empty")
	}
	idTok, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return domainauth.IdentityAssertion{}, "", apperrors.Wrap(err, apperrors.ErrCodeMalformedAssertion, "verify id_token")
	}

	var claims map[string]any
	if err := idTok.Claims(&claims); err != nil {
		return domainauth.IdentityAssertion{}, "", apperrors.Wrap(err, apperrors.ErrCodeMalformedAssertion, "parse id_token claims")
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return domainauth.IdentityAssertion{}, "", apperrors.New(apperrors.ErrCodeMalformedAssertion, "email is not verified")
	}

	a, err := assertion.FromClaims(jwt.MapClaims(claims))
	if err != nil {
		return domainauth.IdentityAssertion{}, "", err
	}
	return a, idTok.Nonce, nil
}

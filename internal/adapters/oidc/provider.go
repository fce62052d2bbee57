package oidc

// Package oidc provides OpenID Connect adapters: identity token verification,
// the interactive authorization-code sign-in and silent refresh-token renewal.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/upstars/corporate-discounts/internal/ports"
	"golang.org/x/oauth2"
)

// DefaultScope requests the claims the login endpoint needs.
const DefaultScope = "openid email profile"

var _ ports.AuthProvider = (*Provider)(nil)

// Provider implements the AuthProvider interface using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	verifier   *Verifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string       // defaults to DefaultScope
	DiscoveryURL string       // issuer or discovery document URL, defaults to GoogleIssuer
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
	Clock        clock.Clock  // Optional
}

// NewProvider creates a new OIDC provider.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}

	scopes := strings.Fields(config.Scope)
	if len(scopes) == 0 {
		scopes = strings.Fields(DefaultScope)
	}
	if !slices.Contains(scopes, "openid") {
		return nil, errors.New("scope must include openid")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	op, err := discover(context.Background(), config.DiscoveryURL, httpClient)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		httpClient: httpClient,
		verifier:   &Verifier{verifier: op.Verifier(verifierConfig(config.ClientID, config.Clock))},
	}, nil
}

// Verifier returns the identity token verifier bound to this provider.
func (p *Provider) Verifier() *Verifier { return p.verifier }

// Refresher returns a silent renewal prompter that redeems refreshToken.
func (p *Provider) Refresher(refreshToken string) *Refresher {
	return NewRefresher(RefresherConfig{
		OAuth2:       p.config,
		HTTPClient:   p.httpClient,
		RefreshToken: refreshToken,
	})
}

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// offline access plus consent makes the provider return a refresh token
	authURL := p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("redirect_uri", in.RedirectURL),
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "consent select_account"),
	)
	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.Credentials, error) {
	if in.Code == "" {
		return ports.Credentials{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return ports.Credentials{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return ports.Credentials{}, errors.New("nonce is required")
	}

	var opts []oauth2.AuthCodeOption
	if in.RedirectURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", in.RedirectURL))
	}
	token, err := p.config.Exchange(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient), in.Code, opts...)
	if err != nil {
		return ports.Credentials{}, fmt.Errorf("exchange code for token: %w", err)
	}

	rawID, err := getIDTokenFromToken(token)
	if err != nil {
		return ports.Credentials{}, err
	}
	if _, nonce, err := p.verifier.verify(ctx, rawID); err != nil {
		return ports.Credentials{}, err
	} else if nonce != in.Nonce {
		return ports.Credentials{}, errors.New("invalid nonce")
	}

	return ports.Credentials{IDToken: rawID, RefreshToken: token.RefreshToken}, nil
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	b := make([]byte, (length*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

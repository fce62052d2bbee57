package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/upstars/corporate-discounts/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.SilentPrompter = (*Refresher)(nil)

// RefresherConfig holds configuration for a Refresher.
type RefresherConfig struct {
	OAuth2       *oauth2.Config
	HTTPClient   *http.Client // Optional
	RefreshToken string
}

// Refresher renews the identity credential without user interaction by
// redeeming a refresh token for a new id_token.
type Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client

	mu           sync.Mutex
	refreshToken string
}

// NewRefresher constructs a Refresher.
func NewRefresher(cfg RefresherConfig) *Refresher {
	return &Refresher{config: cfg.OAuth2, httpClient: cfg.HTTPClient, refreshToken: cfg.RefreshToken}
}

// RefreshToken returns the current refresh token. Providers may rotate it on use.
func (r *Refresher) RefreshToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshToken
}

// SetRefreshToken replaces the refresh token, e.g. after an interactive sign-in.
func (r *Refresher) SetRefreshToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshToken = token
}

// Prompt redeems the refresh token. Provider refusals are reported as outcomes;
// transport failures and context cancellation are returned as errors.
func (r *Refresher) Prompt(ctx context.Context) (ports.PromptResult, error) {
	rt := r.RefreshToken()
	if rt == "" || r.config == nil {
		return ports.PromptResult{Outcome: ports.PromptNotDisplayed, Reason: "no refresh token"}, nil
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ports.PromptResult{}, ctxErr
		}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			if outcome, ok := outcomeFor(re.ErrorCode); ok {
				return ports.PromptResult{Outcome: outcome, Reason: re.ErrorCode}, nil
			}
		}
		return ports.PromptResult{}, fmt.Errorf("refresh id_token: %w", err)
	}

	if tok.RefreshToken != "" && tok.RefreshToken != rt {
		r.SetRefreshToken(tok.RefreshToken)
	}

	raw, err := getIDTokenFromToken(tok)
	if err != nil {
		return ports.PromptResult{Outcome: ports.PromptSkipped, Reason: err.Error()}, nil
	}
	return ports.PromptResult{Outcome: ports.PromptCredential, Credential: raw}, nil
}

// outcomeFor maps OAuth2 error codes onto prompt outcomes.
func outcomeFor(code string) (ports.PromptOutcome, bool) {
	switch code {
	case "invalid_grant", "access_denied":
		// the user revoked access or the grant expired
		return ports.PromptDismissed, true
	case "interaction_required", "login_required", "consent_required", "account_selection_required":
		return ports.PromptSkipped, true
	default:
		return 0, false
	}
}

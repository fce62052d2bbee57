package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
)

// AssertionDecoder turns a raw identity credential into an untrusted assertion.
type AssertionDecoder interface {
	Decode(ctx context.Context, credential string) (domainauth.IdentityAssertion, error)
}

// AllowlistReader returns the current allow-list.
type AllowlistReader interface {
	ListAuthorizedUsers(ctx context.Context) ([]domainauth.AuthorizedUser, error)
}

// AllowlistInvalidator drops any cached copy of the allow-list.
type AllowlistInvalidator interface {
	Invalidate(ctx context.Context) error
}

// SessionTokens issues and verifies signed session tokens.
type SessionTokens interface {
	Issue(p domainauth.Principal) (string, domainauth.SessionClaims, error)
	Verify(token string) (domainauth.SessionClaims, error)
}

// BeginInput carries inputs for initiating an interactive sign-in.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code        string
	State       string
	Nonce       string
	RedirectURL string // must match the one passed to Begin when set
}

// Credentials is the outcome of an interactive sign-in: the raw identity
// credential to present at login and an optional refresh token for silent renewal.
type Credentials struct {
	IDToken      string
	RefreshToken string
}

// AuthProvider runs an interactive sign-in against the identity provider.
type AuthProvider interface {
	// Begin returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the sign-in, verifying state and nonce.
	Exchange(ctx context.Context, in ExchangeInput) (Credentials, error)
}

// PromptOutcome is how a headless reauthentication prompt resolved.
type PromptOutcome int

const (
	// PromptCredential means the provider delivered a fresh identity credential.
	PromptCredential PromptOutcome = iota
	// PromptNotDisplayed means the provider could not show the prompt at all.
	PromptNotDisplayed
	// PromptSkipped means the provider chose not to prompt.
	PromptSkipped
	// PromptDismissed means the user closed the prompt.
	PromptDismissed
)

func (o PromptOutcome) String() string {
	switch o {
	case PromptCredential:
		return "credential"
	case PromptNotDisplayed:
		return "not_displayed"
	case PromptSkipped:
		return "skipped"
	case PromptDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// PromptResult carries the prompt outcome. Credential is set only for PromptCredential.
type PromptResult struct {
	Outcome    PromptOutcome
	Credential string
	Reason     string
}

// SilentPrompter asks the identity provider for a new credential without user interaction.
// Implementations should return when ctx is done.
type SilentPrompter interface {
	Prompt(ctx context.Context) (PromptResult, error)
}

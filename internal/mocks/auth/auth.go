package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	"github.com/upstars/corporate-discounts/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider         = (*MockAuthProvider)(nil)
	_ ports.AssertionDecoder     = (*StaticDecoder)(nil)
	_ ports.AllowlistReader      = (*StaticAllowlist)(nil)
	_ ports.AllowlistInvalidator = (*StaticAllowlist)(nil)
)

// ErrUnknownCredential is returned by StaticDecoder for credentials it was not primed with.
var ErrUnknownCredential = errors.New("unknown credential")

// StaticDecoder maps raw credentials to canned assertions.
type StaticDecoder struct {
	mu         sync.Mutex
	Assertions map[string]domainauth.IdentityAssertion
	DecodeFunc func(ctx context.Context, credential string) (domainauth.IdentityAssertion, error)
}

// NewStaticDecoder creates a StaticDecoder with an empty table.
func NewStaticDecoder() *StaticDecoder {
	return &StaticDecoder{Assertions: map[string]domainauth.IdentityAssertion{}}
}

// Add registers an assertion returned for credential.
func (d *StaticDecoder) Add(credential string, a domainauth.IdentityAssertion) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Assertions[credential] = a
}

func (d *StaticDecoder) Decode(ctx context.Context, credential string) (domainauth.IdentityAssertion, error) {
	if d.DecodeFunc != nil {
		return d.DecodeFunc(ctx, credential)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.Assertions[credential]
	if !ok {
		return domainauth.IdentityAssertion{}, ErrUnknownCredential
	}
	return a, nil
}

// StaticAllowlist serves a fixed allow-list and counts reads.
type StaticAllowlist struct {
	Users []domainauth.AuthorizedUser
	Err   error

	reads         atomic.Int64
	invalidations atomic.Int64
}

func (s *StaticAllowlist) ListAuthorizedUsers(context.Context) ([]domainauth.AuthorizedUser, error) {
	s.reads.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]domainauth.AuthorizedUser, len(s.Users))
	copy(out, s.Users)
	return out, nil
}

func (s *StaticAllowlist) Invalidate(context.Context) error {
	s.invalidations.Add(1)
	return nil
}

// Reads returns how many times the allow-list was consulted.
func (s *StaticAllowlist) Reads() int { return int(s.reads.Load()) }

// Invalidations returns how many times Invalidate was called.
func (s *StaticAllowlist) Invalidations() int { return int(s.invalidations.Load()) }

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (ports.Credentials, error)

	AuthURL     string
	Credentials ports.Credentials

	callCount atomic.Int64
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		Credentials: ports.Credentials{IDToken: "mock-id-token", RefreshToken: "mock-refresh"},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	n := m.callCount.Add(1)
	return m.AuthURL, fmt.Sprintf("state-%d", n), fmt.Sprintf("nonce-%d", n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.Credentials, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	if in.Code == "" {
		return ports.Credentials{}, errors.New("missing code")
	}
	return m.Credentials, nil
}

var _ ports.SilentPrompter = (*ScriptedPrompter)(nil)

// ScriptedPrompter resolves silent prompts from a fixed result or a callback.
// When Gate is non-nil each prompt waits for a value on it (or ctx) first.
type ScriptedPrompter struct {
	Result     ports.PromptResult
	Err        error
	PromptFunc func(ctx context.Context) (ports.PromptResult, error)
	Gate       chan struct{}

	calls atomic.Int64
}

func (p *ScriptedPrompter) Prompt(ctx context.Context) (ports.PromptResult, error) {
	p.calls.Add(1)
	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return ports.PromptResult{}, ctx.Err()
		}
	}
	if p.PromptFunc != nil {
		return p.PromptFunc(ctx)
	}
	return p.Result, p.Err
}

// Calls returns how many prompts were requested.
func (p *ScriptedPrompter) Calls() int { return int(p.calls.Load()) }

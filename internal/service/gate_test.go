package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	mocks "github.com/upstars/corporate-discounts/internal/mocks/auth"
)

func testAllowlist() *mocks.StaticAllowlist {
	return &mocks.StaticAllowlist{Users: []domainauth.AuthorizedUser{
		{Email: "Alice@Upstars.com", Name: "Alice Admin", Role: domainauth.RoleAdmin},
		{Email: "eddie@upstars.com", Role: domainauth.RoleEditor},
	}}
}

func newTestGate(t *testing.T, domain string, list *mocks.StaticAllowlist) *Gate {
	t.Helper()
	g, err := NewGate(GateOptions{AllowedDomain: domain, Allowlist: list})
	require.NoError(t, err)
	return g
}

func TestGate_AllowlistWinsForNameAndRole(t *testing.T) {
	g := newTestGate(t, "upstars.com", testAllowlist())

	p, err := g.Authorize(context.Background(), domainauth.IdentityAssertion{
		Email:   "alice@upstars.com",
		Name:    "Alice From Google",
		Picture: "https://example.com/alice.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice@Upstars.com", p.Email)
	assert.Equal(t, "Alice Admin", p.Name)
	assert.Equal(t, domainauth.RoleAdmin, p.Role)
	assert.Equal(t, "https://example.com/alice.png", p.Picture)
}

func TestGate_NameFallsBackToAssertion(t *testing.T) {
	g := newTestGate(t, "upstars.com", testAllowlist())

	p, err := g.Authorize(context.Background(), domainauth.IdentityAssertion{Email: "EDDIE@upstars.com", Name: "Eddie"})
	require.NoError(t, err)
	assert.Equal(t, "Eddie", p.Name)
	assert.Equal(t, domainauth.RoleEditor, p.Role)
}

func TestGate_DomainRejectedBeforeAllowlist(t *testing.T) {
	list := testAllowlist()
	list.Users = append(list.Users, domainauth.AuthorizedUser{Email: "outsider@gmail.com", Role: domainauth.RoleAdmin})
	g := newTestGate(t, "@Upstars.com", list)

	for _, email := range []string{"outsider@gmail.com", "alice@upstars.com.evil.io", "alice@notupstars.com"} {
		_, err := g.Authorize(context.Background(), domainauth.IdentityAssertion{Email: email})
		assert.ErrorIs(t, err, apperrors.ErrDomainRejected, email)
	}
	assert.Zero(t, list.Reads(), "allow-list must not be consulted")
}

func TestGate_MissingEmailIsMalformed(t *testing.T) {
	list := testAllowlist()
	g := newTestGate(t, "upstars.com", list)

	_, err := g.Authorize(context.Background(), domainauth.IdentityAssertion{Name: "nobody"})
	assert.ErrorIs(t, err, apperrors.ErrMalformedAssertion)
	assert.Zero(t, list.Reads())
}

func TestGate_NotWhitelisted(t *testing.T) {
	g := newTestGate(t, "upstars.com", testAllowlist())

	_, err := g.Authorize(context.Background(), domainauth.IdentityAssertion{Email: "carol@upstars.com"})
	assert.ErrorIs(t, err, apperrors.ErrNotWhitelisted)
	assert.True(t, apperrors.IsAccessDenied(err))
}

func TestGate_NoDomainConfigured(t *testing.T) {
	list := &mocks.StaticAllowlist{Users: []domainauth.AuthorizedUser{{Email: "partner@gmail.com", Role: domainauth.RoleEditor}}}
	g := newTestGate(t, "", list)

	p, err := g.Authorize(context.Background(), domainauth.IdentityAssertion{Email: "partner@gmail.com"})
	require.NoError(t, err)
	assert.Equal(t, "partner@gmail.com", p.Name)
}

func TestGate_UnicodeDomain(t *testing.T) {
	list := &mocks.StaticAllowlist{Users: []domainauth.AuthorizedUser{{Email: "anna@bücher.example", Role: domainauth.RoleEditor}}}
	g := newTestGate(t, "xn--bcher-kva.example", list)

	_, err := g.Authorize(context.Background(), domainauth.IdentityAssertion{Email: "anna@bücher.example"})
	require.NoError(t, err)
}

func TestGate_AllowlistFailureIsInternal(t *testing.T) {
	list := &mocks.StaticAllowlist{Err: errors.New("bucket offline")}
	g := newTestGate(t, "upstars.com", list)

	_, err := g.Authorize(context.Background(), domainauth.IdentityAssertion{Email: "alice@upstars.com"})
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
	assert.False(t, apperrors.IsAccessDenied(err))
}

func TestGate_UnknownRoleIsRejected(t *testing.T) {
	list := &mocks.StaticAllowlist{Users: []domainauth.AuthorizedUser{{Email: "x@upstars.com", Role: "owner"}}}
	g := newTestGate(t, "upstars.com", list)

	_, err := g.Authorize(context.Background(), domainauth.IdentityAssertion{Email: "x@upstars.com"})
	assert.ErrorIs(t, err, apperrors.ErrNotWhitelisted)
}

func TestNewGate_RequiresAllowlist(t *testing.T) {
	_, err := NewGate(GateOptions{AllowedDomain: "upstars.com"})
	require.Error(t, err)
}

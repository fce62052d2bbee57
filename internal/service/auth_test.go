package service

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	mocks "github.com/upstars/corporate-discounts/internal/mocks/auth"
	"github.com/upstars/corporate-discounts/internal/service/sessiontoken"
)

type authFixture struct {
	svc     *AuthService
	decoder *mocks.StaticDecoder
	list    *mocks.StaticAllowlist
	clock   *clock.Mock
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Unix(1_700_000_000, 0))

	codec, err := sessiontoken.NewCodec(sessiontoken.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Clock:  mock,
	})
	require.NoError(t, err)

	list := testAllowlist()
	gate := newTestGate(t, "upstars.com", list)
	decoder := mocks.NewStaticDecoder()

	svc, err := NewAuthService(AuthServiceOptions{Decoder: decoder, Gate: gate, Tokens: codec})
	require.NoError(t, err)

	return authFixture{svc: svc, decoder: decoder, list: list, clock: mock}
}

func TestNewAuthService_RequiresDependencies(t *testing.T) {
	_, err := NewAuthService(AuthServiceOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion decoder is required")
	assert.Contains(t, err.Error(), "gate is required")
}

func TestAuthService_LoginIssuesToken(t *testing.T) {
	f := newAuthFixture(t)
	f.decoder.Add("google-cred", domainauth.IdentityAssertion{
		Email:   "alice@upstars.com",
		Name:    "Alice G",
		Picture: "https://example.com/a.png",
	})

	res, err := f.svc.Login(context.Background(), "google-cred")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "Alice Admin", res.User.Name)
	assert.Equal(t, domainauth.RoleAdmin, res.User.Role)
	assert.Equal(t, "https://example.com/a.png", res.User.Picture)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), res.ExpiresAt)

	claims, err := f.svc.Verify(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, "Alice@Upstars.com", claims.Email)
}

func TestAuthService_LoginFailures(t *testing.T) {
	f := newAuthFixture(t)
	f.decoder.Add("outsider", domainauth.IdentityAssertion{Email: "x@gmail.com"})
	f.decoder.Add("stranger", domainauth.IdentityAssertion{Email: "stranger@upstars.com"})

	tests := []struct {
		name string
		cred string
		want error
	}{
		{name: "empty credential", cred: "  ", want: apperrors.ErrMalformedAssertion},
		{name: "undecodable", cred: "garbage", want: apperrors.ErrMalformedAssertion},
		{name: "wrong domain", cred: "outsider", want: apperrors.ErrDomainRejected},
		{name: "not on allow-list", cred: "stranger", want: apperrors.ErrNotWhitelisted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Login(context.Background(), tt.cred)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthService_Authorize(t *testing.T) {
	f := newAuthFixture(t)
	f.decoder.Add("editor", domainauth.IdentityAssertion{Email: "eddie@upstars.com"})

	res, err := f.svc.Login(context.Background(), "editor")
	require.NoError(t, err)

	claims, err := f.svc.Authorize(context.Background(), res.Token, domainauth.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleEditor, claims.Role)

	_, err = f.svc.Authorize(context.Background(), res.Token, domainauth.RoleAdmin)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientRole)

	f.clock.Add(24 * time.Hour)
	_, err = f.svc.Authorize(context.Background(), res.Token, domainauth.RoleEditor)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
	assert.True(t, apperrors.IsUnauthenticated(err))
}

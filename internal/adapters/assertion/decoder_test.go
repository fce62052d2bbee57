package assertion

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("provider-key-unknown-to-us"))
	require.NoError(t, err)
	return s
}

func newDecoder() *Decoder {
	mock := clock.NewMock()
	mock.Set(now)
	return NewDecoder(mock)
}

func TestDecoder_Decode(t *testing.T) {
	raw := sign(t, jwt.MapClaims{
		"email":   "Alice@Upstars.com",
		"name":    "Alice A.",
		"picture": "https://example.com/a.png",
		"iat":     now.Add(-time.Minute).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})

	a, err := newDecoder().Decode(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Alice@Upstars.com", a.Email)
	assert.Equal(t, "Alice A.", a.Name)
	assert.Equal(t, "https://example.com/a.png", a.Picture)
	assert.Equal(t, now.Add(time.Hour), a.ExpiresAt.UTC())
	assert.Equal(t, now.Add(-time.Minute), a.IssuedAt.UTC())
}

func TestDecoder_Fallbacks(t *testing.T) {
	raw := sign(t, jwt.MapClaims{"email": "bob@upstars.com", "photo": "p.jpg"})
	a, err := newDecoder().Decode(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "bob@upstars.com", a.Name)
	assert.Equal(t, "p.jpg", a.Picture)

	raw = sign(t, jwt.MapClaims{"email": "bob@upstars.com", "avatar_url": "a.jpg", "photo": "p.jpg"})
	a, err = newDecoder().Decode(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", a.Picture)
}

func TestDecoder_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"two segments":  "a.b",
		"four segments": "a.b.c.d",
		"empty segment": "a..c",
		"garbage":       "!!!.???.###",
		"no email":      sign(t, jwt.MapClaims{"name": "x"}),
		"expired":       sign(t, jwt.MapClaims{"email": "a@upstars.com", "exp": now.Add(-time.Second).Unix()}),
		"expires now":   sign(t, jwt.MapClaims{"email": "a@upstars.com", "exp": now.Unix()}),
		"bad exp":       sign(t, jwt.MapClaims{"email": "a@upstars.com", "exp": "tomorrow"}),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newDecoder().Decode(context.Background(), raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedAssertion)
		})
	}
}

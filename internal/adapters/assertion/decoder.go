// Package assertion decodes identity assertions issued by the external identity
// provider without verifying their signature. The authorization gate decides
// what a decoded assertion is allowed to do.
package assertion

import (
	"context"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/ports"
)

var _ ports.AssertionDecoder = (*Decoder)(nil)

// Decoder reads the payload of a three-segment identity token.
type Decoder struct {
	clock  clock.Clock
	parser *jwt.Parser
}

// NewDecoder creates a Decoder. A nil clock means the wall clock.
func NewDecoder(clk clock.Clock) *Decoder {
	if clk == nil {
		clk = clock.New()
	}
	return &Decoder{clock: clk, parser: jwt.NewParser()}
}

// Decode returns the assertion carried by credential.
func (d *Decoder) Decode(_ context.Context, credential string) (domainauth.IdentityAssertion, error) {
	if !threeSegments(credential) {
		return domainauth.IdentityAssertion{}, apperrors.New(apperrors.ErrCodeMalformedAssertion, "credential is not a three-part token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := d.parser.ParseUnverified(credential, claims); err != nil {
		return domainauth.IdentityAssertion{}, apperrors.Wrap(err, apperrors.ErrCodeMalformedAssertion, "credential payload is unreadable")
	}

	a, err := FromClaims(claims)
	if err != nil {
		return domainauth.IdentityAssertion{}, err
	}
	if !a.ExpiresAt.IsZero() && !d.clock.Now().Before(a.ExpiresAt) {
		return domainauth.IdentityAssertion{}, apperrors.New(apperrors.ErrCodeMalformedAssertion, "credential has expired")
	}
	return a, nil
}

// FromClaims maps identity token claims onto an assertion.
func FromClaims(claims jwt.MapClaims) (domainauth.IdentityAssertion, error) {
	email := strings.TrimSpace(stringClaim(claims, "email"))
	if email == "" {
		return domainauth.IdentityAssertion{}, apperrors.New(apperrors.ErrCodeMalformedAssertion, "credential has no email")
	}

	a := domainauth.IdentityAssertion{
		Email:   email,
		Name:    firstNonEmpty(stringClaim(claims, "name"), email),
		Picture: firstNonEmpty(stringClaim(claims, "picture"), stringClaim(claims, "avatar_url"), stringClaim(claims, "photo")),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		a.ExpiresAt = exp.Time
	} else if err != nil {
		return domainauth.IdentityAssertion{}, apperrors.Wrap(err, apperrors.ErrCodeMalformedAssertion, "credential expiry is unreadable")
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		a.IssuedAt = iat.Time
	}
	return a, nil
}

func threeSegments(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

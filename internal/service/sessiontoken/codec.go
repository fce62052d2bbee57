// Package sessiontoken issues and verifies the HS256 session tokens handed out
// at login and presented as bearer credentials on protected calls.
package sessiontoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
)

const (
	// DefaultTTL is the lifetime of a freshly issued token.
	DefaultTTL = 24 * time.Hour

	// MinSecretLength is the minimum accepted signing secret size in bytes.
	MinSecretLength = 32
)

var errSecretTooShort = fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)

// Config groups Codec settings.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Clock  clock.Clock
}

// Codec signs and verifies session tokens with a single server secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
	parser *jwt.Parser
}

// claims is the wire payload: email, name, role, iat, exp.
type claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// NewCodec constructs a Codec. The secret is copied.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, errSecretTooShort
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	c := &Codec{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TTL,
		clock:  cfg.Clock,
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	return c, nil
}

// TTL returns the lifetime applied to issued tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs a token for p valid from now until now+TTL.
func (c *Codec) Issue(p domainauth.Principal) (string, domainauth.SessionClaims, error) {
	if p.Email == "" {
		return "", domainauth.SessionClaims{}, errors.New("issue token: email is required")
	}
	if !p.Role.Valid() {
		return "", domainauth.SessionClaims{}, fmt.Errorf("issue token: invalid role %q", p.Role)
	}

	now := c.clock.Now().Truncate(time.Second)
	exp := now.Add(c.ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: p.Email,
		Name:  p.Name,
		Role:  string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", domainauth.SessionClaims{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, domainauth.SessionClaims{
		Email:     p.Email,
		Name:      p.Name,
		Role:      p.Role,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Verify checks the token's shape, signature and expiry and returns its claims.
func (c *Codec) Verify(token string) (domainauth.SessionClaims, error) {
	if !wellFormed(token) {
		return domainauth.SessionClaims{}, apperrors.New(apperrors.ErrCodeTokenMalformed, "token must have three non-empty segments")
	}

	var cl claims
	_, err := c.parser.ParseWithClaims(token, &cl, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return domainauth.SessionClaims{}, classify(err)
	}

	role, ok := domainauth.ParseRole(cl.Role)
	if cl.Email == "" || !ok {
		return domainauth.SessionClaims{}, apperrors.New(apperrors.ErrCodeTokenMalformed, "token payload is incomplete")
	}

	out := domainauth.SessionClaims{
		Email:     cl.Email,
		Name:      cl.Name,
		Role:      role,
		ExpiresAt: cl.ExpiresAt.Time,
	}
	if cl.IssuedAt != nil {
		out.IssuedAt = cl.IssuedAt.Time
	}
	return out, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(err, apperrors.ErrCodeTokenInvalidSignature, "token signature mismatch")
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(err, apperrors.ErrCodeTokenExpired, "token expired")
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeTokenMalformed, "token is malformed")
	}
}

func wellFormed(token string) bool {
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

// PeekExpiry decodes the exp claim without checking the signature.
// Clients use it to schedule renewal; it must never gate access.
func PeekExpiry(token string) (time.Time, error) {
	if !wellFormed(token) {
		return time.Time{}, apperrors.New(apperrors.ErrCodeTokenMalformed, "token must have three non-empty segments")
	}
	var cl claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &cl); err != nil {
		return time.Time{}, apperrors.Wrap(err, apperrors.ErrCodeTokenMalformed, "decode token")
	}
	if cl.ExpiresAt == nil {
		return time.Time{}, apperrors.New(apperrors.ErrCodeTokenMalformed, "token has no expiry")
	}
	return cl.ExpiresAt.Time, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Decoder ports.AssertionDecoder // Required: identity assertion decoder
	Gate    *Gate                  // Required: authorization gate
	Tokens  ports.SessionTokens    // Required: session token codec
	Logger  *slog.Logger           // Optional: structured logger
}

// AuthService orchestrates login and session verification by coordinating
// the assertion decoder, the authorization gate and the token codec.
type AuthService struct {
	decoder ports.AssertionDecoder
	gate    *Gate
	tokens  ports.SessionTokens
	logger  *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	var missing []error
	if opts.Decoder == nil {
		missing = append(missing, errors.New("assertion decoder is required"))
	}
	if opts.Gate == nil {
		missing = append(missing, errors.New("gate is required"))
	}
	if opts.Tokens == nil {
		missing = append(missing, errors.New("token codec is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuthService{
		decoder: opts.Decoder,
		gate:    opts.Gate,
		tokens:  opts.Tokens,
		logger:  logger,
	}, nil
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	User      domainauth.Profile
	ExpiresAt time.Time
}

// Login exchanges an identity credential for a session token.
// Every failure is logged with its specific kind; callers decide how much to disclose.
func (s *AuthService) Login(ctx context.Context, credential string) (*LoginResult, error) {
	res, err := s.login(ctx, credential)
	if err != nil {
		s.logger.WarnContext(ctx, "login rejected", "kind", string(apperrors.GetCode(err)), "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "login succeeded", "email", res.User.Email, "role", string(res.User.Role))
	return res, nil
}

func (s *AuthService) login(ctx context.Context, credential string) (*LoginResult, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, apperrors.New(apperrors.ErrCodeMalformedAssertion, "credential is required")
	}

	assertion, err := s.decoder.Decode(ctx, credential)
	if err != nil {
		if apperrors.GetCode(err) == "" {
			err = apperrors.Wrap(err, apperrors.ErrCodeMalformedAssertion, "decode credential")
		}
		return nil, err
	}

	principal, err := s.gate.Authorize(ctx, assertion)
	if err != nil {
		return nil, err
	}

	token, claims, err := s.tokens.Issue(principal)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "issue session token")
	}

	return &LoginResult{
		Token:     token,
		User:      principal.Profile(),
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Verify returns the claims of a valid session token.
func (s *AuthService) Verify(_ context.Context, token string) (*domainauth.SessionClaims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	return &claims, nil
}

// Authorize verifies token and checks that its role is at least min.
func (s *AuthService) Authorize(ctx context.Context, token string, min domainauth.Role) (*domainauth.SessionClaims, error) {
	claims, err := s.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if !claims.Role.AtLeast(min) {
		return nil, apperrors.Newf(apperrors.ErrCodeInsufficientRole, "role %q does not satisfy %q", claims.Role, min)
	}
	return claims, nil
}

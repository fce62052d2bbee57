package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/ports"
	"golang.org/x/net/idna"
)

// GateOptions groups dependencies for Gate.
type GateOptions struct {
	AllowedDomain string                // Optional: e.g. "upstars.com"; empty disables the domain check
	Allowlist     ports.AllowlistReader // Required: allow-list source
	Logger        *slog.Logger          // Optional: structured logger
}

// Gate decides whether an identity assertion may become a session.
// Checks run in a fixed order and stop at the first failure; the allow-list
// is never read for an assertion that fails the structural or domain checks.
type Gate struct {
	suffix    string
	allowlist ports.AllowlistReader
	logger    *slog.Logger
}

// NewGate constructs a Gate.
func NewGate(opts GateOptions) (*Gate, error) {
	if opts.Allowlist == nil {
		return nil, errors.New("allow-list reader is required")
	}
	g := &Gate{allowlist: opts.Allowlist, logger: opts.Logger}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}

	if d := strings.TrimPrefix(strings.TrimSpace(opts.AllowedDomain), "@"); d != "" {
		ascii, err := idna.Lookup.ToASCII(strings.ToLower(d))
		if err != nil {
			return nil, fmt.Errorf("allowed domain %q: %w", opts.AllowedDomain, err)
		}
		g.suffix = "@" + ascii
	}
	return g, nil
}

// Authorize runs the structural, domain and allow-list checks in that order.
// The returned principal takes email, name and role from the allow-list entry;
// only the picture comes from the assertion.
func (g *Gate) Authorize(ctx context.Context, a domainauth.IdentityAssertion) (domainauth.Principal, error) {
	email := domainauth.NormalizeEmail(a.Email)
	if email == "" {
		return domainauth.Principal{}, apperrors.New(apperrors.ErrCodeMalformedAssertion, "assertion has no email")
	}

	if g.suffix != "" && !g.inDomain(email) {
		return domainauth.Principal{}, apperrors.Newf(apperrors.ErrCodeDomainRejected, "%s is outside the permitted domain", email)
	}

	users, err := g.allowlist.ListAuthorizedUsers(ctx)
	if err != nil {
		return domainauth.Principal{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read allow-list")
	}

	entry, ok := domainauth.FindAuthorizedUser(users, email)
	if !ok {
		return domainauth.Principal{}, apperrors.Newf(apperrors.ErrCodeNotWhitelisted, "%s is not on the allow-list", email)
	}
	if !entry.Role.Valid() {
		g.logger.WarnContext(ctx, "allow-list entry has unknown role", "email", entry.Email, "role", entry.Role)
		return domainauth.Principal{}, apperrors.Newf(apperrors.ErrCodeNotWhitelisted, "%s has no usable role", email)
	}

	name := entry.Name
	if name == "" {
		name = a.Name
	}
	if name == "" {
		name = entry.Email
	}

	return domainauth.Principal{
		Email:   entry.Email,
		Name:    name,
		Role:    entry.Role,
		Picture: a.Picture,
	}, nil
}

func (g *Gate) inDomain(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return false
	}
	domain, err := idna.Lookup.ToASCII(email[at+1:])
	if err != nil {
		return false
	}
	return "@"+domain == g.suffix
}

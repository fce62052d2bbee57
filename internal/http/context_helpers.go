package httpx

import (
	"context"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
)

// claimsKey is an unexported context key type to avoid collisions across packages.
type claimsKey struct{}

// SetClaimsInContext returns a child context that carries the verified session claims.
// If claims is nil, the original ctx is returned unchanged.
func SetClaimsInContext(ctx context.Context, claims *domainauth.SessionClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the session claims stored by RequireToken.
func ClaimsFromContext(ctx context.Context) (*domainauth.SessionClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*domainauth.SessionClaims)
	return c, ok && c != nil
}

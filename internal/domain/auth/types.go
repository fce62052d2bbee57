package auth

// Package auth contains domain-level types for identity assertions, the
// allow-list and session tokens. It is pure and free of adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and token claims.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

var roleRank = map[Role]int{
	RoleEditor: 1,
	RoleAdmin:  2,
}

// ParseRole converts a string into a Role. Unknown values return false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := roleRank[r]
	return r, ok
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants at least the privileges of min.
// Unknown roles never satisfy any requirement.
func (r Role) AtLeast(min Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	need, ok := roleRank[min]
	if !ok {
		return false
	}
	return have >= need
}

// IdentityAssertion is the decoded payload of an externally issued identity
// token. It is untrusted until it has passed the authorization gate.
type IdentityAssertion struct {
	Email     string
	Name      string
	Picture   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthorizedUser is one entry of the allow-list. JSON tags follow the layout
// of the allowedUsers section in the configuration document.
type AuthorizedUser struct {
	ID      string    `json:"id,omitempty"`
	Email   string    `json:"email"`
	Name    string    `json:"name,omitempty"`
	Role    Role      `json:"role"`
	AddedAt time.Time `json:"addedAt,omitzero"`
	AddedBy string    `json:"addedBy,omitempty"`
}

// Principal is an identity that passed the authorization gate.
type Principal struct {
	Email   string
	Name    string
	Role    Role
	Picture string
}

// Profile is the public view of a signed-in user.
type Profile struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    Role   `json:"role,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Profile returns the public view of p.
func (p Principal) Profile() Profile {
	return Profile{Email: p.Email, Name: p.Name, Role: p.Role, Picture: p.Picture}
}

// SessionClaims is the verified content of a session token.
type SessionClaims struct {
	Email     string
	Name      string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ValidAt reports whether the claims are still valid at now (valid iff now < exp).
func (c SessionClaims) ValidAt(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// NormalizeEmail returns the canonical form used for allow-list comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FindAuthorizedUser returns the entry whose email matches email case-insensitively.
func FindAuthorizedUser(users []AuthorizedUser, email string) (AuthorizedUser, bool) {
	want := NormalizeEmail(email)
	if want == "" {
		return AuthorizedUser{}, false
	}
	for _, u := range users {
		if NormalizeEmail(u.Email) == want {
			return u, true
		}
	}
	return AuthorizedUser{}, false
}

// ValidateAllowlist checks that every entry carries an email and a known role
// and that no normalized email appears twice.
func ValidateAllowlist(users []AuthorizedUser) error {
	seen := make(map[string]int, len(users))
	var errs []error
	for i, u := range users {
		email := NormalizeEmail(u.Email)
		if email == "" || !strings.Contains(email, "@") {
			errs = append(errs, fmt.Errorf("entry %d: invalid email %q", i, u.Email))
			continue
		}
		if !u.Role.Valid() {
			errs = append(errs, fmt.Errorf("entry %d: invalid role %q", i, u.Role))
		}
		if prev, dup := seen[email]; dup {
			errs = append(errs, fmt.Errorf("entry %d: duplicate email %q (first at %d)", i, email, prev))
			continue
		}
		seen[email] = i
	}
	return errors.Join(errs...)
}

// AllowlistField is the configuration document section holding the allow-list.
const AllowlistField = "allowedUsers"

// ParseAllowlistSection decodes the allow-list section. Absent or null yields an empty list.
func ParseAllowlistSection(raw json.RawMessage) ([]AuthorizedUser, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var users []AuthorizedUser
	if err := json.Unmarshal(trimmed, &users); err != nil {
		return nil, fmt.Errorf("%s must be an array of users: %w", AllowlistField, err)
	}
	return users, nil
}

// AllowlistFromDocument extracts the allow-list from a whole configuration document.
func AllowlistFromDocument(body []byte) ([]AuthorizedUser, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("configuration document is not a JSON object: %w", err)
	}
	return ParseAllowlistSection(doc[AllowlistField])
}

package data

import (
	"context"
	"fmt"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/ports"
)

// DocumentAllowlist reads the allow-list section of the configuration document.
type DocumentAllowlist struct {
	Store ports.DocumentStore
	Key   string
}

var _ ports.AllowlistReader = (*DocumentAllowlist)(nil)

// NewDocumentAllowlist creates an allow-list reader over the document stored at key.
func NewDocumentAllowlist(store ports.DocumentStore, key string) *DocumentAllowlist {
	return &DocumentAllowlist{Store: store, Key: key}
}

// ListAuthorizedUsers returns the allow-list. A missing document yields an empty list.
func (a *DocumentAllowlist) ListAuthorizedUsers(ctx context.Context) ([]domainauth.AuthorizedUser, error) {
	body, err := a.Store.Get(ctx, a.Key)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read allow-list document: %w", err)
	}
	users, err := domainauth.AllowlistFromDocument(body)
	if err != nil {
		return nil, fmt.Errorf("parse allow-list document: %w", err)
	}
	return users, nil
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/ports"
)

// DefaultConfigKey is where the application configuration document lives.
const DefaultConfigKey = "data/app-config.json"

// AllowlistField is the document section holding the allow-list.
const AllowlistField = domainauth.AllowlistField

// ConfigDocumentServiceOptions groups dependencies for ConfigDocumentService.
type ConfigDocumentServiceOptions struct {
	Store       ports.DocumentStore        // Required: document storage
	Key         string                     // Optional: document key, defaults to DefaultConfigKey
	Invalidator ports.AllowlistInvalidator // Optional: cache to drop after a save
	Clock       clock.Clock                // Optional: defaults to the wall clock
	Logger      *slog.Logger               // Optional: structured logger
}

// ConfigDocumentService loads and saves the JSON configuration document that
// carries the discount catalog and the allow-list.
type ConfigDocumentService struct {
	store       ports.DocumentStore
	key         string
	invalidator ports.AllowlistInvalidator
	clock       clock.Clock
	logger      *slog.Logger
}

// NewConfigDocumentService constructs a ConfigDocumentService.
func NewConfigDocumentService(opts ConfigDocumentServiceOptions) (*ConfigDocumentService, error) {
	if opts.Store == nil {
		return nil, errors.New("document store is required")
	}
	s := &ConfigDocumentService{
		store:       opts.Store,
		key:         opts.Key,
		invalidator: opts.Invalidator,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
	if s.key == "" {
		s.key = DefaultConfigKey
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Key returns the document key.
func (s *ConfigDocumentService) Key() string { return s.key }

// Load returns the stored document verbatim.
func (s *ConfigDocumentService) Load(ctx context.Context) ([]byte, error) {
	body, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load config document: %w", err)
	}
	return body, nil
}

// SaveResult reports a successful save.
type SaveResult struct {
	Message   string
	Timestamp time.Time
}

// Save replaces the document with body on behalf of actor.
// The body must be a JSON object. Any change to the allow-list section
// requires the admin role and must keep emails unique and roles valid.
func (s *ConfigDocumentService) Save(ctx context.Context, actor domainauth.SessionClaims, body []byte) (*SaveResult, error) {
	doc, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	next, err := allowlistOf(doc)
	if err != nil {
		return nil, apperrors.ValidationField(AllowlistField, err.Error())
	}
	if err := domainauth.ValidateAllowlist(next); err != nil {
		return nil, apperrors.ValidationField(AllowlistField, err.Error())
	}

	current, err := s.currentAllowlist(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if !sameAllowlist(current, next) {
		if !actor.Role.AtLeast(domainauth.RoleAdmin) {
			return nil, apperrors.New(apperrors.ErrCodeInsufficientRole, "changing the allow-list requires the admin role")
		}
		stamp(next, actor.Email, now)
		raw, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("encode allow-list: %w", err)
		}
		doc[AllowlistField] = raw
		s.logger.InfoContext(ctx, "allow-list changed", "actor", actor.Email, "entries", len(next))
	} else if _, ok := doc[AllowlistField]; ok && current != nil {
		// Unchanged section: keep the stored ids and provenance.
		raw, err := json.Marshal(current)
		if err != nil {
			return nil, fmt.Errorf("encode allow-list: %w", err)
		}
		doc[AllowlistField] = raw
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config document: %w", err)
	}
	if err := s.store.Put(ctx, s.key, out, "application/json"); err != nil {
		return nil, fmt.Errorf("save config document: %w", err)
	}

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate allow-list cache", "error", err)
		}
	}

	s.logger.InfoContext(ctx, "config document saved", "actor", actor.Email, "bytes", len(out))
	return &SaveResult{Message: "Config saved successfully", Timestamp: now}, nil
}

func (s *ConfigDocumentService) currentAllowlist(ctx context.Context) ([]domainauth.AuthorizedUser, error) {
	body, err := s.store.Get(ctx, s.key)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read current config document")
	}
	users, err := domainauth.AllowlistFromDocument(body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "stored config document is unreadable")
	}
	return users, nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &doc); err != nil || doc == nil {
		return nil, apperrors.Validation("Invalid config format")
	}
	return doc, nil
}

func allowlistOf(doc map[string]json.RawMessage) ([]domainauth.AuthorizedUser, error) {
	return domainauth.ParseAllowlistSection(doc[AllowlistField])
}

// sameAllowlist compares the access-relevant content: email, name and role.
func sameAllowlist(a, b []domainauth.AuthorizedUser) bool {
	key := func(users []domainauth.AuthorizedUser) []string {
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, strings.Join([]string{domainauth.NormalizeEmail(u.Email), u.Name, string(u.Role)}, "\x00"))
		}
		slices.Sort(out)
		return out
	}
	return slices.Equal(key(a), key(b))
}

func stamp(users []domainauth.AuthorizedUser, actor string, now time.Time) {
	for i := range users {
		if users[i].ID == "" {
			users[i].ID = uuid.NewString()
		}
		if users[i].AddedAt.IsZero() {
			users[i].AddedAt = now
			if users[i].AddedBy == "" {
				users[i].AddedBy = actor
			}
		}
	}
}

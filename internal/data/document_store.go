package data

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/ports"
)

var (
	_ ports.DocumentStore = (*FileDocumentStore)(nil)
	_ ports.DocumentStore = (*MemoryDocumentStore)(nil)
	_ ports.DocumentStore = (*FallbackDocumentStore)(nil)
)

// cleanKey rejects keys that are empty, absolute, or escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean(strings.TrimSpace(key))
	if k == "." || k == "" || strings.HasPrefix(k, "/") || k == ".." || strings.HasPrefix(k, "../") {
		return "", apperrors.ValidationField("key", fmt.Sprintf("invalid document key %q", key))
	}
	return k, nil
}

// FileDocumentStore keeps documents as files under Root. Used for local development.
type FileDocumentStore struct {
	Root string
}

// NewFileDocumentStore creates a file-backed store rooted at root.
func NewFileDocumentStore(root string) *FileDocumentStore {
	return &FileDocumentStore{Root: root}
}

func (s *FileDocumentStore) path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, filepath.FromSlash(k)), nil
}

// Get reads the document stored under key.
func (s *FileDocumentStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "document %s not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", key, err)
	}
	return body, nil
}

// Put replaces the document under key. Readers never observe a partial write.
func (s *FileDocumentStore) Put(ctx context.Context, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write document %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync document %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close document %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("replace document %s: %w", key, err)
	}
	return nil
}

// MemoryDocumentStore keeps documents in memory. Safe for concurrent use.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryDocumentStore creates an empty in-memory store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string][]byte)}
}

func (s *MemoryDocumentStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.docs[key]
	if !ok {
		return nil, apperrors.NotFound("document " + key + " not found")
	}
	return append([]byte(nil), body...), nil
}

func (s *MemoryDocumentStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if _, err := cleanKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), body...)
	return nil
}

// FallbackDocumentStore tries Primary first and falls back to Secondary when
// the primary fails. A NotFound from the primary also falls through, so a
// document that only exists in the secondary bucket stays readable.
type FallbackDocumentStore struct {
	Primary   ports.DocumentStore
	Secondary ports.DocumentStore
	Logger    *slog.Logger
}

func (s *FallbackDocumentStore) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *FallbackDocumentStore) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := s.Primary.Get(ctx, key)
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if !apperrors.IsNotFound(err) {
		s.logger().WarnContext(ctx, "primary document store read failed, using fallback", "key", key, "error", err)
	}

	// the primary failure is already logged; callers only see the fallback outcome
	return s.Secondary.Get(ctx, key)
}

func (s *FallbackDocumentStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	err := s.Primary.Put(ctx, key, body, contentType)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	s.logger().WarnContext(ctx, "primary document store write failed, using fallback", "key", key, "error", err)

	if fbErr := s.Secondary.Put(ctx, key, body, contentType); fbErr != nil {
		return errors.Join(err, fbErr)
	}
	return nil
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
)

// State is where the session lifecycle currently stands.
type State int

const (
	// StateAnonymous means no session: never logged in or logged out.
	StateAnonymous State = iota
	// StateAuthenticated means a usable session is installed.
	StateAuthenticated
	// StateRenewing means a silent renewal is in flight; the old token is still used until it expires.
	StateRenewing
	// StateExpired means renewal failed and only an interactive login can recover.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	case StateRenewing:
		return "renewing"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session is what survives a restart.
type Session struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
	User      domainauth.Profile `json:"user"`
}

// StateStore persists the session and the last signed-in user.
// The last user is kept across logout for display only and never grants access.
type StateStore interface {
	LoadSession(ctx context.Context) (*Session, error) // nil, nil when none
	SaveSession(ctx context.Context, s Session) error
	ClearSession(ctx context.Context) error
	LoadLastUser(ctx context.Context) (*domainauth.Profile, error) // nil, nil when none
	SaveLastUser(ctx context.Context, p domainauth.Profile) error
}

const (
	sessionFile  = "session.json"
	lastUserFile = "last_user.json"
	refreshFile  = "refresh_token.json"
)

// FileStateStore keeps state as JSON files under Dir, readable only by the owner.
type FileStateStore struct {
	Dir string
}

var _ StateStore = (*FileStateStore)(nil)

// NewFileStateStore creates a store rooted at dir.
func NewFileStateStore(dir string) *FileStateStore {
	return &FileStateStore{Dir: dir}
}

// DefaultStateDir returns the per-user state directory.
func DefaultStateDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "corporate-discounts"), nil
}

func (s *FileStateStore) LoadSession(_ context.Context) (*Session, error) {
	var sess Session
	ok, err := s.read(sessionFile, &sess)
	if err != nil || !ok {
		return nil, err
	}
	return &sess, nil
}

func (s *FileStateStore) SaveSession(_ context.Context, sess Session) error {
	return s.write(sessionFile, sess)
}

func (s *FileStateStore) ClearSession(_ context.Context) error {
	return s.remove(sessionFile)
}

type refreshRecord struct {
	RefreshToken string `json:"refreshToken"`
}

// LoadRefreshToken returns the identity provider refresh token, or "" when none is stored.
func (s *FileStateStore) LoadRefreshToken() (string, error) {
	var rec refreshRecord
	if _, err := s.read(refreshFile, &rec); err != nil {
		return "", err
	}
	return rec.RefreshToken, nil
}

// SaveRefreshToken stores the identity provider refresh token. An empty token removes it.
func (s *FileStateStore) SaveRefreshToken(token string) error {
	if token == "" {
		return s.remove(refreshFile)
	}
	return s.write(refreshFile, refreshRecord{RefreshToken: token})
}

func (s *FileStateStore) remove(name string) error {
	err := os.Remove(filepath.Join(s.Dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (s *FileStateStore) LoadLastUser(_ context.Context) (*domainauth.Profile, error) {
	var p domainauth.Profile
	ok, err := s.read(lastUserFile, &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (s *FileStateStore) SaveLastUser(_ context.Context, p domainauth.Profile) error {
	return s.write(lastUserFile, p)
}

func (s *FileStateStore) read(name string, v any) (bool, error) {
	raw, err := os.ReadFile(filepath.Join(s.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *FileStateStore) write(name string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, name)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// MemoryStateStore keeps state in memory.
type MemoryStateStore struct {
	mu       sync.Mutex
	session  *Session
	lastUser *domainauth.Profile
}

var _ StateStore = (*MemoryStateStore)(nil)

func (m *MemoryStateStore) LoadSession(context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *MemoryStateStore) SaveSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

func (m *MemoryStateStore) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

func (m *MemoryStateStore) LoadLastUser(context.Context) (*domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastUser == nil {
		return nil, nil
	}
	p := *m.lastUser
	return &p, nil
}

func (m *MemoryStateStore) SaveLastUser(_ context.Context, p domainauth.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUser = &p
	return nil
}

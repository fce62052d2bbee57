package data

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
)

func TestFileDocumentStore_RoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewFileDocumentStore(root)
	ctx := context.Background()

	_, err := store.Get(ctx, "data/app-config.json")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, store.Put(ctx, "data/app-config.json", []byte(`{"a":1}`), "application/json"))
	body, err := store.Get(ctx, "data/app-config.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(body))

	require.NoError(t, store.Put(ctx, "data/app-config.json", []byte(`{"a":2}`), "application/json"))
	body, err = store.Get(ctx, "data/app-config.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(body))

	entries, err := os.ReadDir(filepath.Join(root, "data"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileDocumentStore_RejectsEscapingKeys(t *testing.T) {
	store := NewFileDocumentStore(t.TempDir())
	for _, key := range []string{"", "../secret.json", "/etc/passwd", "a/../../b"} {
		err := store.Put(context.Background(), key, []byte(`{}`), "application/json")
		assert.True(t, apperrors.IsValidation(err), key)
	}
}

func TestMemoryDocumentStore_CopiesBodies(t *testing.T) {
	store := NewMemoryDocumentStore()
	body := []byte(`{"a":1}`)
	require.NoError(t, store.Put(context.Background(), "k", body, ""))
	body[2] = 'b'

	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingStore) Put(context.Context, string, []byte, string) error { return f.err }

func TestFallbackDocumentStore(t *testing.T) {
	ctx := context.Background()

	t.Run("primary wins", func(t *testing.T) {
		primary, secondary := NewMemoryDocumentStore(), NewMemoryDocumentStore()
		require.NoError(t, primary.Put(ctx, "k", []byte("p"), ""))
		require.NoError(t, secondary.Put(ctx, "k", []byte("s"), ""))

		s := &FallbackDocumentStore{Primary: primary, Secondary: secondary}
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "p", string(got))
	})

	t.Run("read falls back on failure", func(t *testing.T) {
		secondary := NewMemoryDocumentStore()
		require.NoError(t, secondary.Put(ctx, "k", []byte("s"), ""))

		s := &FallbackDocumentStore{Primary: failingStore{errors.New("unreachable")}, Secondary: secondary}
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "s", string(got))
	})

	t.Run("read falls back when primary lacks the key", func(t *testing.T) {
		secondary := NewMemoryDocumentStore()
		require.NoError(t, secondary.Put(ctx, "k", []byte("s"), ""))

		s := &FallbackDocumentStore{Primary: NewMemoryDocumentStore(), Secondary: secondary}
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "s", string(got))
	})

	t.Run("missing everywhere is not found", func(t *testing.T) {
		s := &FallbackDocumentStore{Primary: failingStore{errors.New("down")}, Secondary: NewMemoryDocumentStore()}
		_, err := s.Get(ctx, "k")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("write falls back", func(t *testing.T) {
		secondary := NewMemoryDocumentStore()
		s := &FallbackDocumentStore{Primary: failingStore{errors.New("denied")}, Secondary: secondary}
		require.NoError(t, s.Put(ctx, "k", []byte("v"), "application/json"))

		got, err := secondary.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(got))
	})

	t.Run("write fails when both fail", func(t *testing.T) {
		s := &FallbackDocumentStore{
			Primary:   failingStore{errors.New("denied")},
			Secondary: failingStore{errors.New("disk full")},
		}
		err := s.Put(ctx, "k", []byte("v"), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "denied")
		assert.Contains(t, err.Error(), "disk full")
	})
}

func TestDocumentAllowlist(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()
	list := NewDocumentAllowlist(store, "data/app-config.json")

	users, err := list.ListAuthorizedUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	require.NoError(t, store.Put(ctx, "data/app-config.json",
		[]byte(`{"allowedUsers":[{"email":"a@upstars.com","role":"admin"}]}`), "application/json"))
	users, err = list.ListAuthorizedUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "a@upstars.com", users[0].Email)

	require.NoError(t, store.Put(ctx, "data/app-config.json", []byte(`[]`), "application/json"))
	_, err = list.ListAuthorizedUsers(ctx)
	require.Error(t, err)

	broken := NewDocumentAllowlist(failingStore{errors.New("down")}, "k")
	_, err = broken.ListAuthorizedUsers(ctx)
	require.Error(t, err)
}

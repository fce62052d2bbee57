package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upstars/corporate-discounts/config"
	"github.com/upstars/corporate-discounts/internal/client"
	"github.com/upstars/corporate-discounts/internal/data"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
)

const testConfigKey = "data/app-config.json"

const testDocument = `{
  "discounts": [],
  "allowedUsers": [
    {"email": "dev@upstars.com", "name": "Dev Admin", "role": "admin"}
  ]
}`

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		Auth: config.AuthConfig{
			TokenSecret:     strings.Repeat("k", config.MinTokenSecretLength),
			TokenTTL:        24 * time.Hour,
			AllowedDomain:   "upstars.com",
			AssertionMode:   config.AssertionModeStructural,
			AllowlistSource: config.AllowlistSourceDocument,
		},
		RateLimit: config.RateLimitConfig{Window: time.Minute, Login: 5, Mutation: 10, SweepInterval: time.Minute},
		Store: config.StoreConfig{
			Backend:   config.StoreBackendFile,
			FileRoot:  t.TempDir(),
			ConfigKey: testConfigKey,
		},
	}
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestBuildDocumentStore_File(t *testing.T) {
	ctx := context.Background()
	cfg := testAppConfig(t)

	store, err := BuildDocumentStore(ctx, cfg.Store, discard())
	require.NoError(t, err)
	require.IsType(t, &data.FileDocumentStore{}, store)

	require.NoError(t, store.Put(ctx, testConfigKey, []byte(testDocument), "application/json"))
	_, err = os.Stat(filepath.Join(cfg.Store.FileRoot, "data", "app-config.json"))
	assert.NoError(t, err)
}

func TestBuildDocumentStore_RejectsMissingBucket(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Store.Backend = config.StoreBackendS3

	_, err := BuildDocumentStore(context.Background(), cfg.Store, discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET")
}

func TestNewServices_RequiresPostgresForPostgresSource(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Auth.AllowlistSource = config.AllowlistSourcePostgres

	_, err := NewServices(context.Background(), &ServiceDeps{
		Config: cfg,
		Store:  data.NewMemoryDocumentStore(),
		Logger: discard(),
	})
	require.Error(t, err)
}

func TestNewServices_StoreReadiness(t *testing.T) {
	ctx := context.Background()
	cfg := testAppConfig(t)

	services, err := NewServices(ctx, &ServiceDeps{Config: cfg, Store: data.NewMemoryDocumentStore(), Logger: discard()})
	require.NoError(t, err)
	require.Contains(t, services.Readiness, "store")
	assert.NotContains(t, services.Readiness, "redis", "no cache without a redis client")
	assert.NoError(t, services.Readiness["store"](ctx), "a missing document still means the store answered")

	failing := storeCheck(failingStore{}, testConfigKey)
	assert.Error(t, failing(ctx))
}

func TestNewServices_LoginThroughRouter(t *testing.T) {
	ctx := context.Background()
	cfg := testAppConfig(t)
	store := data.NewMemoryDocumentStore()
	require.NoError(t, store.Put(ctx, testConfigKey, []byte(testDocument), "application/json"))

	services, err := NewServices(ctx, &ServiceDeps{Config: cfg, Store: store, Logger: discard()})
	require.NoError(t, err)

	srv := NewHTTPServer(&HTTPServerConfig{Config: cfg, Services: services, Logger: discard()})
	require.NotNil(t, srv)
	assert.Equal(t, ":8080", srv.Addr)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	sess, err := NewClientSession(ctx, config.ClientConfig{
		APIURL:         ts.URL,
		StateDir:       t.TempDir(),
		RenewalBuffer:  5 * time.Minute,
		RenewalTimeout: 10 * time.Second,
		Prompter:       config.PrompterModeDev,
		DevAuth:        config.DevAuthConfig{Email: "dev@upstars.com", Name: "Ignored", Outcome: "credential"},
	}, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	resp, err := sess.SignIn(ctx, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "Dev Admin", resp.User.Name, "name comes from the allow-list")
	assert.Equal(t, domainauth.RoleAdmin, resp.User.Role)
	assert.Equal(t, client.StateAuthenticated, sess.Manager.State())

	doc, err := sess.Authed.LoadConfig(ctx)
	require.NoError(t, err)
	var parsed map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc, &parsed))
	assert.Contains(t, parsed, "allowedUsers")

	saved, err := sess.Authed.SaveConfig(ctx, doc)
	require.NoError(t, err)
	assert.True(t, saved.Success)

	require.NoError(t, sess.SignOut(ctx))
	_, err = sess.Authed.SaveConfig(ctx, doc)
	assert.ErrorIs(t, err, client.ErrAuthenticationRequired)
}

func TestNewClientSession_RejectsUnknownOutcome(t *testing.T) {
	_, err := NewClientSession(context.Background(), config.ClientConfig{
		APIURL:   "http://localhost:8080",
		StateDir: t.TempDir(),
		Prompter: config.PrompterModeDev,
		DevAuth:  config.DevAuthConfig{Email: "dev@upstars.com", Outcome: "maybe"},
	}, discard())
	assert.Error(t, err)
}

func TestServeHTTP_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- ServeHTTP(ctx, srv, time.Second, discard()) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("bucket unreachable")
}

func (failingStore) Put(context.Context, string, []byte, string) error {
	return apperrors.New(apperrors.ErrCodeInternal, "read-only")
}

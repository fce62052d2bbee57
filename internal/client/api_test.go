package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upstars/corporate-discounts/internal/adapters/assertion"
	"github.com/upstars/corporate-discounts/internal/adapters/devauth"
	"github.com/upstars/corporate-discounts/internal/data"
	httpx "github.com/upstars/corporate-discounts/internal/http"
	"github.com/upstars/corporate-discounts/internal/ports"
	"github.com/upstars/corporate-discounts/internal/service"
	"github.com/upstars/corporate-discounts/internal/service/ratelimit"
	"github.com/upstars/corporate-discounts/internal/service/sessiontoken"
)

const e2eDocument = `{"discounts":[],"allowedUsers":[{"email":"dev@upstars.com","name":"Dev Editor","role":"editor"}]}`

// newAPIServer runs the real HTTP surface over an in-memory document store.
func newAPIServer(t *testing.T, clk clock.Clock) *httptest.Server {
	t.Helper()
	store := data.NewMemoryDocumentStore()
	require.NoError(t, store.Put(context.Background(), service.DefaultConfigKey, []byte(e2eDocument), "application/json"))

	gate, err := service.NewGate(service.GateOptions{
		AllowedDomain: "upstars.com",
		Allowlist:     data.NewDocumentAllowlist(store, service.DefaultConfigKey),
	})
	require.NoError(t, err)
	codec, err := sessiontoken.NewCodec(sessiontoken.Config{Secret: []byte("0123456789abcdef0123456789abcdef"), Clock: clk})
	require.NoError(t, err)
	authSvc, err := service.NewAuthService(service.AuthServiceOptions{Decoder: assertion.NewDecoder(clk), Gate: gate, Tokens: codec})
	require.NoError(t, err)
	configSvc, err := service.NewConfigDocumentService(service.ConfigDocumentServiceOptions{Store: store, Clock: clk})
	require.NoError(t, err)

	srv := httptest.NewServer(httpx.NewRouter(httpx.RouterServices{
		Auth:          authSvc,
		Config:        configSvc,
		LoginLimiter:  ratelimit.New(ratelimit.Options{Limit: 50, Clock: clk}),
		MutateLimiter: ratelimit.New(ratelimit.Options{Limit: 50, Clock: clk}),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewAPIClient_RejectsBadURL(t *testing.T) {
	_, err := NewAPIClient("ftp://x", nil)
	assert.Error(t, err)
	_, err = NewAPIClient("://", nil)
	assert.Error(t, err)
}

func TestAPIClient_DecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Access denied","code":"not_whitelisted"}`))
	}))
	t.Cleanup(srv.Close)

	api, err := NewAPIClient(srv.URL, srv.Client())
	require.NoError(t, err)
	_, err = api.Login(context.Background(), "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, &APIError{Status: 403, Code: "not_whitelisted", Message: "Access denied"}, apiErr)
	assert.True(t, IsStatus(err, http.StatusForbidden))
}

func TestEndToEnd_LoginRenewAndSave(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Now().Truncate(time.Second))
	srv := newAPIServer(t, mock)

	api, err := NewAPIClient(srv.URL, srv.Client())
	require.NoError(t, err)
	prompter, err := devauth.NewProvider(devauth.Config{Email: "dev@upstars.com", Clock: mock})
	require.NoError(t, err)
	renewer, err := NewRenewer(RenewerOptions{Prompter: prompter, API: api, Clock: mock})
	require.NoError(t, err)
	mgr, err := NewManager(ManagerOptions{API: api, Renewer: renewer, Clock: mock})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)

	credential, err := prompter.Mint()
	require.NoError(t, err)
	resp, err := mgr.Login(context.Background(), credential)
	require.NoError(t, err)
	assert.Equal(t, "Dev Editor", resp.User.Name)

	v, err := api.Verify(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	authed := api.WithHTTPClient(&http.Client{Transport: &Transport{Base: srv.Client().Transport, Manager: mgr}})

	doc, err := authed.LoadConfig(context.Background())
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(doc, &parsed))

	saved, err := authed.SaveConfig(context.Background(), []byte(`{"discounts":[{"id":"gym"}],"allowedUsers":[{"email":"dev@upstars.com","name":"Dev Editor","role":"editor"}]}`))
	require.NoError(t, err)
	assert.True(t, saved.Success)

	// Crossing into the renewal buffer renews silently through the dev prompter.
	mock.Add(23*time.Hour + 55*time.Minute)
	require.Eventually(t, func() bool {
		tok, ok := mgr.Token()
		return ok && tok != resp.Token && mgr.State() == StateAuthenticated
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, prompter.Prompts())

	// A dismissed prompt ends the session; the next call never leaves the client.
	prompter.SetOutcome(ports.PromptDismissed)
	mock.Add(23*time.Hour + 55*time.Minute)
	require.Eventually(t, func() bool { return mgr.State() == StateExpired }, 2*time.Second, 10*time.Millisecond)

	_, err = authed.SaveConfig(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

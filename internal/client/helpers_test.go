package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	"github.com/upstars/corporate-discounts/internal/service/sessiontoken"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeAPI issues real session tokens on the shared mock clock. Every token
// carries a sequence number so no two are identical.
type fakeAPI struct {
	codec *sessiontoken.Codec
	seq   atomic.Int64
	calls atomic.Int64
	err   error
}

func newFakeAPI(t *testing.T, clk clock.Clock) *fakeAPI {
	t.Helper()
	codec, err := sessiontoken.NewCodec(sessiontoken.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Clock:  clk,
	})
	require.NoError(t, err)
	return &fakeAPI{codec: codec}
}

func (f *fakeAPI) Login(_ context.Context, credential string) (*LoginResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.mint(credential)
}

func (f *fakeAPI) mint(email string) (*LoginResponse, error) {
	p := domainauth.Principal{
		Email: email,
		Name:  fmt.Sprintf("user-%d", f.seq.Add(1)),
		Role:  domainauth.RoleEditor,
	}
	token, claims, err := f.codec.Issue(p)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Success: true, Token: token, ExpiresAt: claims.ExpiresAt, User: p.Profile()}, nil
}

// fakeRenewer logs in as renewed@upstars.com, optionally waiting on gate first.
type fakeRenewer struct {
	api   *fakeAPI
	gate  chan struct{}
	err   error
	calls atomic.Int64
}

func (r *fakeRenewer) Renew(ctx context.Context) (*LoginResponse, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.api.Login(ctx, "renewed@upstars.com")
}

type managerFixture struct {
	clock   *clock.Mock
	api     *fakeAPI
	renewer *fakeRenewer
	store   *MemoryStateStore
	mgr     *Manager
	expired atomic.Int64
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(t0)
	f := &managerFixture{clock: mock, store: &MemoryStateStore{}}
	f.api = newFakeAPI(t, mock)
	f.renewer = &fakeRenewer{api: f.api}

	mgr, err := NewManager(ManagerOptions{
		API:       f.api,
		Renewer:   f.renewer,
		Store:     f.store,
		Clock:     mock,
		OnExpired: func() { f.expired.Add(1) },
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)
	f.mgr = mgr
	return f
}

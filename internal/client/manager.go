package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/service/sessiontoken"
)

// DefaultRenewalBuffer is how long before expiry renewal starts.
const DefaultRenewalBuffer = 5 * time.Minute

// ErrAuthenticationRequired is returned when no usable session exists and
// only an interactive login can provide one.
var ErrAuthenticationRequired = apperrors.New(apperrors.ErrCodeAuthenticationRequired, "authentication required")

// SessionRenewer obtains a new session without user interaction.
type SessionRenewer interface {
	Renew(ctx context.Context) (*LoginResponse, error)
}

// ManagerOptions groups dependencies for Manager.
type ManagerOptions struct {
	API       Loginer        // Required: interactive login
	Renewer   SessionRenewer // Required: silent renewal
	Store     StateStore     // Optional: defaults to an in-memory store
	Buffer    time.Duration  // Optional: defaults to DefaultRenewalBuffer
	Clock     clock.Clock    // Optional: defaults to the wall clock
	OnExpired func()         // Optional: called once each time renewal fails
	Logger    *slog.Logger   // Optional
}

type renewResult struct {
	token string
	err   error
}

// Manager owns the client session. It installs sessions after login,
// schedules a silent renewal shortly before expiry, and funnels every
// concurrent renewal request into a single attempt.
//
// Renewal failure moves the session to StateExpired. From there nothing is
// retried automatically; callers are rejected until the next Login.
type Manager struct {
	api       Loginer
	renewer   SessionRenewer
	store     StateStore
	buffer    time.Duration
	clock     clock.Clock
	onExpired func()
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	session  *Session
	lastUser *domainauth.Profile
	timer    *clock.Timer
	// epoch changes whenever the session is replaced from outside a
	// renewal (login, restore, logout). A renewal that started in an
	// older epoch must not install its result.
	epoch      uint64
	refreshing bool
	waiters    []chan renewResult

	// storeMu orders writes to the StateStore so a cleared session cannot
	// be overwritten by a renewal that finished earlier.
	storeMu sync.Mutex
}

// NewManager constructs a Manager in StateAnonymous.
func NewManager(opts ManagerOptions) (*Manager, error) {
	var missing []error
	if opts.API == nil {
		missing = append(missing, errors.New("api is required"))
	}
	if opts.Renewer == nil {
		missing = append(missing, errors.New("renewer is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}
	m := &Manager{
		api:       opts.API,
		renewer:   opts.Renewer,
		store:     opts.Store,
		buffer:    opts.Buffer,
		clock:     opts.Clock,
		onExpired: opts.OnExpired,
		logger:    opts.Logger,
	}
	if m.store == nil {
		m.store = &MemoryStateStore{}
	}
	if m.buffer <= 0 {
		m.buffer = DefaultRenewalBuffer
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the installed session, if any.
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// LastUser returns the most recently signed-in profile for display.
func (m *Manager) LastUser() (domainauth.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastUser == nil {
		return domainauth.Profile{}, false
	}
	return *m.lastUser, true
}

// Login performs an interactive login with credential and installs the session.
func (m *Manager) Login(ctx context.Context, credential string) (*LoginResponse, error) {
	resp, err := m.api.Login(ctx, credential)
	if err != nil {
		return nil, err
	}
	if err := m.Install(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Install makes resp the current session and schedules its renewal. The
// expiry is read from the token itself; the server's expiresAt is only a
// fallback.
func (m *Manager) Install(ctx context.Context, resp *LoginResponse) error {
	sess, err := sessionFrom(resp)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.installLocked(sess)
	m.mu.Unlock()

	m.persist(ctx, epoch, sess)
	m.logger.InfoContext(ctx, "session installed", "email", sess.User.Email, "expires_at", sess.ExpiresAt)
	return nil
}

func sessionFrom(resp *LoginResponse) (Session, error) {
	if resp == nil || resp.Token == "" {
		return Session{}, errors.New("login response has no token")
	}
	exp, err := sessiontoken.PeekExpiry(resp.Token)
	if err != nil {
		if resp.ExpiresAt.IsZero() {
			return Session{}, fmt.Errorf("session expiry: %w", err)
		}
		exp = resp.ExpiresAt
	}
	return Session{Token: resp.Token, ExpiresAt: exp, User: resp.User}, nil
}

func (m *Manager) installLocked(sess Session) {
	m.session = &sess
	user := sess.User
	m.lastUser = &user
	m.state = StateAuthenticated
	m.scheduleLocked()
}

// Restore rebuilds the session from the StateStore without contacting the
// server. An expired stored session is discarded.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	if p, err := m.store.LoadLastUser(ctx); err != nil {
		m.logger.WarnContext(ctx, "failed to load last user", "error", err)
	} else if p != nil {
		m.mu.Lock()
		m.lastUser = p
		m.mu.Unlock()
	}

	sess, err := m.store.LoadSession(ctx)
	if err != nil {
		return m.State(), fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.Token == "" {
		return m.State(), nil
	}
	if exp, err := sessiontoken.PeekExpiry(sess.Token); err == nil {
		sess.ExpiresAt = exp
	}
	if !m.clock.Now().Before(sess.ExpiresAt) {
		if err := m.store.ClearSession(ctx); err != nil {
			m.logger.WarnContext(ctx, "failed to clear stale session", "error", err)
		}
		return m.State(), nil
	}

	m.mu.Lock()
	m.epoch++
	m.session = sess
	m.state = StateAuthenticated
	m.scheduleLocked()
	m.mu.Unlock()
	return StateAuthenticated, nil
}

// Logout drops the session and cancels any pending renewal. A renewal already
// in flight finishes without installing its result. The last user is kept.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.epoch++
	m.stopTimerLocked()
	m.session = nil
	m.state = StateAnonymous
	m.mu.Unlock()

	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	if err := m.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close stops the renewal timer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

// Token returns the current token when the session is usable: authenticated
// or renewing, and not past its expiry.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.usableLocked() {
		return "", false
	}
	return m.session.Token, true
}

func (m *Manager) usableLocked() bool {
	if m.session == nil {
		return false
	}
	if m.state != StateAuthenticated && m.state != StateRenewing {
		return false
	}
	return m.clock.Now().Before(m.session.ExpiresAt)
}

// AccessToken returns the token to send with a request. A token inside the
// renewal buffer or past its expiry is renewed first, and a caller arriving
// while a renewal runs waits for it. Without a session the caller is refused
// with ErrAuthenticationRequired and nothing is attempted.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	return m.renew(ctx, func() (string, bool) {
		if m.state != StateAuthenticated || m.session == nil {
			return "", false
		}
		if !m.clock.Now().Before(m.session.ExpiresAt.Add(-m.buffer)) {
			return "", false
		}
		return m.session.Token, true
	})
}

// Renew returns a fresh token. Concurrent callers share one renewal attempt
// and are resolved in arrival order with its result. In StateAnonymous or
// StateExpired no attempt is made.
func (m *Manager) Renew(ctx context.Context) (string, error) {
	return m.renew(ctx, nil)
}

// RenewAfterReject is Renew for a caller whose request was refused with
// rejected. When another caller already rotated the token, the new token is
// returned without another attempt.
func (m *Manager) RenewAfterReject(ctx context.Context, rejected string) (string, error) {
	return m.renew(ctx, func() (string, bool) {
		if !m.usableLocked() || m.session.Token == rejected {
			return "", false
		}
		return m.session.Token, true
	})
}

// renew starts or joins the shared renewal. current runs under m.mu and may
// supply a token that makes the renewal unnecessary.
func (m *Manager) renew(ctx context.Context, current func() (string, bool)) (string, error) {
	m.mu.Lock()
	if m.session == nil || m.state == StateAnonymous || m.state == StateExpired {
		m.mu.Unlock()
		return "", ErrAuthenticationRequired
	}
	if current != nil && !m.refreshing {
		if token, ok := current(); ok {
			m.mu.Unlock()
			return token, nil
		}
	}
	if m.refreshing {
		ch := make(chan renewResult, 1)
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()
		select {
		case r := <-ch:
			return r.token, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	m.refreshing = true
	m.state = StateRenewing
	epoch := m.epoch
	m.stopTimerLocked()
	m.mu.Unlock()

	// The attempt outlives any single caller; the renewer enforces its own timeout.
	var sess Session
	resp, err := m.renewer.Renew(context.WithoutCancel(ctx))
	if err == nil {
		sess, err = sessionFrom(resp)
	}
	return m.finishRenewal(ctx, epoch, sess, err)
}

func (m *Manager) finishRenewal(ctx context.Context, epoch uint64, sess Session, err error) (string, error) {
	m.mu.Lock()
	waiters := m.waiters
	m.waiters = nil
	m.refreshing = false

	var res renewResult
	expired, installed := false, false
	switch {
	case m.epoch != epoch:
		// Logged out or signed in again while the renewal ran.
		if m.usableLocked() {
			res.token = m.session.Token
		} else {
			res.err = ErrAuthenticationRequired
		}
	case err != nil:
		m.logger.WarnContext(ctx, "session renewal failed",
			"kind", string(apperrors.GetCode(err)), "error", err)
		m.stopTimerLocked()
		m.session = nil
		m.state = StateExpired
		expired = true
		res.err = ErrAuthenticationRequired
	default:
		m.installLocked(sess)
		installed = true
		res.token = sess.Token
	}
	onExpired := m.onExpired
	m.mu.Unlock()

	if installed {
		m.persist(ctx, epoch, sess)
		m.logger.InfoContext(ctx, "session renewed", "email", sess.User.Email, "expires_at", sess.ExpiresAt)
	}
	for _, ch := range waiters {
		ch <- res
	}
	if expired {
		m.clearStored(ctx, epoch)
		if onExpired != nil {
			onExpired()
		}
		return "", fmt.Errorf("%w: %w", ErrAuthenticationRequired, err)
	}
	return res.token, res.err
}

// scheduleLocked arms the renewal timer for expiry minus buffer, replacing
// any pending one. A non-positive delay starts renewal right away.
func (m *Manager) scheduleLocked() {
	m.stopTimerLocked()
	if m.session == nil {
		return
	}
	delay := m.session.ExpiresAt.Add(-m.buffer).Sub(m.clock.Now())
	if delay <= 0 {
		go m.renewInBackground()
		return
	}
	m.timer = m.clock.AfterFunc(delay, func() { go m.renewInBackground() })
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) renewInBackground() {
	ctx := context.Background()
	if _, err := m.Renew(ctx); err != nil && !errors.Is(err, ErrAuthenticationRequired) {
		m.logger.DebugContext(ctx, "scheduled renewal ended", "error", err)
	}
}

// persist writes sess unless the session moved on from epoch in the meantime.
func (m *Manager) persist(ctx context.Context, epoch uint64, sess Session) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	if !m.inEpoch(epoch) {
		return
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		m.logger.WarnContext(ctx, "failed to persist session", "error", err)
	}
	if err := m.store.SaveLastUser(ctx, sess.User); err != nil {
		m.logger.WarnContext(ctx, "failed to persist last user", "error", err)
	}
}

func (m *Manager) clearStored(ctx context.Context, epoch uint64) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	if !m.inEpoch(epoch) {
		return
	}
	if err := m.store.ClearSession(ctx); err != nil {
		m.logger.WarnContext(ctx, "failed to clear session", "error", err)
	}
}

func (m *Manager) inEpoch(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

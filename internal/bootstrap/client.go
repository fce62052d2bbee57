package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/upstars/corporate-discounts/config"
	"github.com/upstars/corporate-discounts/internal/adapters/devauth"
	"github.com/upstars/corporate-discounts/internal/adapters/oidc"
	"github.com/upstars/corporate-discounts/internal/client"
	"github.com/upstars/corporate-discounts/internal/ports"
)

// signInTimeout bounds how long the CLI waits for the browser callback.
const signInTimeout = 5 * time.Minute

// ClientSession bundles the admin CLI's view of the API: a session manager
// backed by the state directory and an HTTP client whose transport attaches
// and renews the session token.
type ClientSession struct {
	Manager *client.Manager
	// Public calls the API without credentials.
	Public *client.APIClient
	// Authed calls the API through the session transport.
	Authed *client.APIClient
	Store  *client.FileStateStore

	provider    ports.AuthProvider
	refresher   *oidc.Refresher
	redirectURL string
	logger      *slog.Logger
}

// NewClientSession builds the session manager, renewer and transport from cfg.
func NewClientSession(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger) (*ClientSession, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := cfg.StateDir
	if dir == "" {
		var err error
		if dir, err = client.DefaultStateDir(); err != nil {
			return nil, err
		}
	}
	store := client.NewFileStateStore(dir)

	public, err := client.NewAPIClient(cfg.APIURL, nil)
	if err != nil {
		return nil, err
	}

	s := &ClientSession{Public: public, Store: store, redirectURL: cfg.OAuth.RedirectURL, logger: logger}

	var prompter ports.SilentPrompter
	switch cfg.Prompter {
	case config.PrompterModeOIDC:
		p, perr := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Scope:        cfg.OAuth.Scope,
			DiscoveryURL: cfg.OAuth.DiscoveryURL,
		})
		if perr != nil {
			return nil, fmt.Errorf("oidc provider: %w", perr)
		}
		rt, rerr := store.LoadRefreshToken()
		if rerr != nil {
			logger.WarnContext(ctx, "failed to load refresh token", "error", rerr)
		}
		s.provider = p
		s.refresher = p.Refresher(rt)
		prompter = s.refresher
	default:
		outcome, oerr := devauth.ParseOutcome(cfg.DevAuth.Outcome)
		if oerr != nil {
			return nil, oerr
		}
		p, perr := devauth.NewProvider(devauth.Config{
			Email:   cfg.DevAuth.Email,
			Name:    cfg.DevAuth.Name,
			Outcome: outcome,
		})
		if perr != nil {
			return nil, perr
		}
		s.provider = p
		prompter = p
	}

	renewer, err := client.NewRenewer(client.RenewerOptions{
		Prompter: prompter,
		API:      public,
		Timeout:  cfg.RenewalTimeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	s.Manager, err = client.NewManager(client.ManagerOptions{
		API:     public,
		Renewer: renewer,
		Store:   store,
		Buffer:  cfg.RenewalBuffer,
		OnExpired: func() {
			logger.Warn("session expired; run login to sign in again")
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	s.Authed = public.WithHTTPClient(&http.Client{
		Timeout:   30 * time.Second,
		Transport: &client.Transport{Manager: s.Manager},
	})
	return s, nil
}

// SignIn runs the provider's interactive flow and installs the resulting session.
// For OIDC the authorization URL is written to out and the callback is served
// on the loopback redirect address.
func (s *ClientSession) SignIn(ctx context.Context, out io.Writer) (*client.LoginResponse, error) {
	creds, err := s.interactive(ctx, out)
	if err != nil {
		return nil, err
	}
	resp, err := s.Manager.Login(ctx, creds.IDToken)
	if err != nil {
		return nil, err
	}
	if s.refresher != nil && creds.RefreshToken != "" {
		s.refresher.SetRefreshToken(creds.RefreshToken)
	}
	return resp, nil
}

// SignOut ends the session and forgets the refresh token.
func (s *ClientSession) SignOut(ctx context.Context) error {
	var errs []error
	errs = append(errs, s.Manager.Logout(ctx))
	if s.refresher != nil {
		s.refresher.SetRefreshToken("")
	}
	errs = append(errs, s.Store.SaveRefreshToken(""))
	return errors.Join(errs...)
}

// Close stops the renewal timer and persists a rotated refresh token.
func (s *ClientSession) Close() error {
	s.Manager.Close()
	if s.refresher == nil {
		return nil
	}
	return s.Store.SaveRefreshToken(s.refresher.RefreshToken())
}

func (s *ClientSession) interactive(ctx context.Context, out io.Writer) (ports.Credentials, error) {
	if s.refresher == nil {
		// dev provider: no browser round trip
		authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{})
		if err != nil {
			return ports.Credentials{}, err
		}
		s.logger.DebugContext(ctx, "dev sign-in", "url", authURL)
		return s.provider.Exchange(ctx, ports.ExchangeInput{Code: "dev", State: state, Nonce: nonce})
	}

	redirect, err := url.Parse(s.redirectURL)
	if err != nil || redirect.Host == "" {
		return ports.Credentials{}, fmt.Errorf("invalid redirect URL %q", s.redirectURL)
	}
	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: s.redirectURL})
	if err != nil {
		return ports.Credentials{}, err
	}

	code, err := awaitCallback(ctx, redirect, state, func() {
		fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", authURL)
	})
	if err != nil {
		return ports.Credentials{}, err
	}
	return s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:        code,
		State:       state,
		Nonce:       nonce,
		RedirectURL: s.redirectURL,
	})
}

// awaitCallback serves redirect until the provider calls back with a code for state.
func awaitCallback(ctx context.Context, redirect *url.URL, state string, ready func()) (string, error) {
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("listen for callback: %w", err)
	}

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("sign-in failed: %s", q.Get("error"))
		case q.Get("state") != state:
			res.err = errors.New("sign-in failed: state mismatch")
		case q.Get("code") == "":
			res.err = errors.New("sign-in failed: no authorization code")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			_, _ = io.WriteString(w, "Signed in. You can close this window.\n")
		}
		select {
		case done <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	ready()

	timer := time.NewTimer(signInTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.code, res.err
	case <-timer.C:
		return "", errors.New("sign-in timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

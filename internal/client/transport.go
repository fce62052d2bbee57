package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that authorizes requests with the
// Manager's session. Requests are rejected locally only when no session is
// held. A token inside the renewal buffer or already expired is renewed before
// sending, requests made during a renewal wait for it, and a 401 joins the
// shared renewal and replays the request once.
type Transport struct {
	Base    http.RoundTripper // Optional: defaults to http.DefaultTransport
	Manager *Manager          // Required
}

var _ http.RoundTripper = (*Transport)(nil)

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, err := t.Manager.AccessToken(ctx)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	resp, err := t.base().RoundTrip(authorize(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	replay, err := rewind(req)
	if err != nil {
		// Not replayable; the caller gets the 401 as is.
		return resp, nil
	}
	drain(resp)

	fresh, err := t.Manager.RenewAfterReject(ctx, token)
	if err != nil {
		return nil, err
	}
	return t.base().RoundTrip(authorize(replay, fresh))
}

func authorize(req *http.Request, token string) *http.Request {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// rewind returns a copy of req with a fresh body for a replay.
func rewind(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	r.Body = body
	return r, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

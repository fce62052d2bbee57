package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/ports"
)

// DefaultRenewalTimeout bounds one silent prompt.
const DefaultRenewalTimeout = 10 * time.Second

// Loginer exchanges an identity credential for a session.
type Loginer interface {
	Login(ctx context.Context, credential string) (*LoginResponse, error)
}

// RenewerOptions groups dependencies for Renewer.
type RenewerOptions struct {
	Prompter ports.SilentPrompter // Required: headless reauthentication
	API      Loginer              // Required: where the fresh credential is sent
	Timeout  time.Duration        // Optional: defaults to DefaultRenewalTimeout
	Clock    clock.Clock          // Optional: defaults to the wall clock
	Logger   *slog.Logger         // Optional
}

// Renewer obtains a new session without user interaction: it asks the
// identity provider for a fresh credential and logs in with it.
type Renewer struct {
	prompter ports.SilentPrompter
	api      Loginer
	timeout  time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRenewer constructs a Renewer.
func NewRenewer(opts RenewerOptions) (*Renewer, error) {
	var missing []error
	if opts.Prompter == nil {
		missing = append(missing, errors.New("prompter is required"))
	}
	if opts.API == nil {
		missing = append(missing, errors.New("api is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}
	r := &Renewer{
		prompter: opts.Prompter,
		api:      opts.API,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultRenewalTimeout
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r, nil
}

type promptReply struct {
	res ports.PromptResult
	err error
}

// Renew runs one silent reauthentication. The prompt is abandoned after the
// timeout; any outcome other than a credential is reported as
// renewal_declined, and nothing is retried.
func (r *Renewer) Renew(ctx context.Context) (*LoginResponse, error) {
	promptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Armed before the prompt starts so a slow prompt can never outrun it.
	timer := r.clock.Timer(r.timeout)
	defer timer.Stop()

	replies := make(chan promptReply, 1)
	go func() {
		res, err := r.prompter.Prompt(promptCtx)
		replies <- promptReply{res: res, err: err}
	}()

	var reply promptReply
	select {
	case reply = <-replies:
	case <-timer.C:
		r.logger.WarnContext(ctx, "silent renewal timed out", "timeout", r.timeout)
		return nil, apperrors.Newf(apperrors.ErrCodeRenewalTimeout, "no credential within %s", r.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if reply.err != nil {
		return nil, apperrors.Wrap(reply.err, apperrors.ErrCodeRenewalDeclined, "silent prompt failed")
	}
	if reply.res.Outcome != ports.PromptCredential || reply.res.Credential == "" {
		r.logger.InfoContext(ctx, "silent renewal declined",
			"outcome", reply.res.Outcome.String(), "reason", reply.res.Reason)
		return nil, apperrors.Newf(apperrors.ErrCodeRenewalDeclined, "prompt outcome %s", reply.res.Outcome)
	}

	resp, err := r.api.Login(ctx, reply.res.Credential)
	if err != nil {
		return nil, fmt.Errorf("login with renewed credential: %w", err)
	}
	return resp, nil
}

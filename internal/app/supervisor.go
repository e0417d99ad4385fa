package app

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/spotigui/spotigui/internal/auth"
	"github.com/spotigui/spotigui/internal/logging"
)

// Authorizer is the part of auth.Manager the supervisor drives.
type Authorizer interface {
	HasSession() bool
	Authorize(ctx context.Context) (auth.Session, error)
	Invalidate()
}

// Poller runs until its context ends or the session becomes unusable.
type Poller interface {
	Run(ctx context.Context) error
}

// Resumer re-enables command delivery after a new session.
type Resumer interface {
	Resume()
}

// AuthStatus records whether the user has to sign in.
type AuthStatus interface {
	SetAuthRequired(bool)
}

// SupervisorOptions carry notification hooks and the logger.
type SupervisorOptions struct {
	OnAuthorized func()
	OnAuthFailed func(error)
	Logger       logrus.FieldLogger
}

// Supervisor keeps a session alive: it authorizes when none is held, runs the
// poller while one is, and starts over when the poller reports the session
// lost or the user asks to sign in again.
type Supervisor struct {
	auth    Authorizer
	poller  Poller
	resumer Resumer
	status  AuthStatus
	opts    SupervisorOptions
	log     logrus.FieldLogger
	retry   chan struct{}
}

// NewSupervisor builds a Supervisor.
func NewSupervisor(a Authorizer, poller Poller, resumer Resumer, status AuthStatus, opts SupervisorOptions) *Supervisor {
	if opts.OnAuthorized == nil {
		opts.OnAuthorized = func() {}
	}
	if opts.OnAuthFailed == nil {
		opts.OnAuthFailed = func(error) {}
	}
	return &Supervisor{
		auth:    a,
		poller:  poller,
		resumer: resumer,
		status:  status,
		opts:    opts,
		log:     logging.Component(opts.Logger, "supervisor"),
		retry:   make(chan struct{}, 1),
	}
}

// Retry requests another authorization attempt. It never blocks.
func (s *Supervisor) Retry() {
	select {
	case s.retry <- struct{}{}:
	default:
	}
}

// Run supervises until ctx is cancelled. Authorization failures are reported
// through OnAuthFailed and wait for Retry.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !s.auth.HasSession() {
			s.status.SetAuthRequired(true)
			s.drainRetry()
			if _, err := s.auth.Authorize(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.WithError(err).Warn("authorization failed")
				s.opts.OnAuthFailed(err)
				if !s.waitRetry(ctx) {
					return nil
				}
				continue
			}
			// Retries queued while the prompt was up predate this session.
			s.drainRetry()
			s.status.SetAuthRequired(false)
			s.resumer.Resume()
			s.opts.OnAuthorized()
		}

		retried, err := s.poll(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case retried:
			s.log.Info("reauthorization requested")
			s.auth.Invalidate()
		case errors.Is(err, auth.ErrReauthorizationRequired):
			s.log.WithError(err).Info("session lost, reauthorizing")
			s.auth.Invalidate()
		case err != nil:
			return err
		default:
			return nil
		}
	}
}

// poll runs the poller until it returns or a retry is requested.
func (s *Supervisor) poll(ctx context.Context) (bool, error) {
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.poller.Run(pollCtx) }()

	select {
	case err := <-done:
		return false, err
	case <-s.retry:
		cancel()
		<-done
		return true, nil
	}
}

func (s *Supervisor) waitRetry(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.retry:
		return true
	}
}

func (s *Supervisor) drainRetry() {
	select {
	case <-s.retry:
	default:
	}
}

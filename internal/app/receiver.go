package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spotigui/spotigui/internal/auth"
	"github.com/spotigui/spotigui/internal/logging"
	"github.com/spotigui/spotigui/internal/spotify"
	"github.com/spotigui/spotigui/internal/state"
)

const (
	defaultPollInterval = time.Second
	maxBackoff          = 30 * time.Second
)

// TokenProvider hands out access tokens.
type TokenProvider interface {
	ValidToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) error
}

// PlaybackSource fetches the remote player state.
type PlaybackSource interface {
	CurrentPlayback(ctx context.Context) (*spotify.Playback, error)
}

// Reconciler sees every snapshot the receiver publishes.
type Reconciler interface {
	Reconcile(state.Snapshot)
}

// ReceiverOptions tune a Receiver.
type ReceiverOptions struct {
	Interval    time.Duration
	Reconcilers []Reconciler
	Logger      logrus.FieldLogger
}

// Receiver polls the remote player and publishes snapshots to the store.
type Receiver struct {
	source   PlaybackSource
	tokens   TokenProvider
	store    *state.Store
	interval time.Duration
	recs     []Reconciler
	log      logrus.FieldLogger
	now      func() time.Time

	// lastTrack is the track of the last published snapshot that had a
	// device. Only the polling goroutine touches it.
	lastTrack string

	mu      sync.Mutex
	visible bool
	resume  chan struct{}
}

// NewReceiver builds a Receiver. It starts visible.
func NewReceiver(source PlaybackSource, tokens TokenProvider, store *state.Store, opts ReceiverOptions) *Receiver {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Receiver{
		source:   source,
		tokens:   tokens,
		store:    store,
		interval: interval,
		recs:     opts.Reconcilers,
		log:      logging.Component(opts.Logger, "receiver"),
		now:      time.Now,
		visible:  true,
		resume:   make(chan struct{}),
	}
}

// SetVisible pauses polling while the surface is hidden.
func (r *Receiver) SetVisible(visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.visible == visible {
		return
	}
	r.visible = visible
	if visible {
		close(r.resume)
		r.resume = make(chan struct{})
	}
	r.log.WithField("visible", visible).Debug("visibility changed")
}

// Run polls until ctx is cancelled or the session can no longer be used. In
// the second case it returns an error wrapping auth.ErrReauthorizationRequired.
func (r *Receiver) Run(ctx context.Context) error {
	if c, ok := r.source.(interface{ CloseIdleConnections() }); ok {
		defer c.CloseIdleConnections()
	}

	failures := 0
	for {
		if !r.waitVisible(ctx) {
			return nil
		}

		err := r.poll(ctx)
		delay := r.interval
		switch {
		case err == nil:
			if failures > 0 {
				r.log.WithField("failures", failures).Info("polling recovered")
			}
			failures = 0
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, auth.ErrReauthorizationRequired):
			r.store.SetAuthRequired(true)
			r.log.WithError(err).Warn("polling stopped, authorization required")
			return err
		default:
			failures++
			r.store.RecordFailure(err)
			delay = calculateBackoff(failures, r.interval)
			if ra := spotify.RetryAfter(err); ra > delay {
				delay = ra
			}
			entry := r.log.WithError(err).WithField("failures", failures).WithField("retry_in", delay)
			if failures == 1 {
				entry.Warn("playback poll failed")
			} else {
				entry.Debug("playback poll failed")
			}
		}

		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
}

// poll runs one fetch and publishes the result.
func (r *Receiver) poll(ctx context.Context) error {
	observedAt := r.now()

	if _, err := r.tokens.ValidToken(ctx); err != nil {
		return err
	}

	pb, err := r.source.CurrentPlayback(ctx)
	if errors.Is(err, spotify.ErrUnauthorized) {
		r.log.Debug("token rejected, forcing refresh")
		if rerr := r.tokens.ForceRefresh(ctx); rerr != nil {
			return rerr
		}
		pb, err = r.source.CurrentPlayback(ctx)
		if errors.Is(err, spotify.ErrUnauthorized) {
			return fmt.Errorf("%w: %v", auth.ErrReauthorizationRequired, err)
		}
	}
	if errors.Is(err, spotify.ErrDeviceUnavailable) {
		pb, err = nil, nil
	}
	if err != nil {
		return err
	}

	snap := state.NewSnapshot(pb, observedAt)
	if !snap.NoDevice && snap.TrackID != r.lastTrack {
		snap.TrackChanged = true
	}
	if !r.store.Publish(snap) {
		r.log.WithField("observed_at", observedAt).Debug("dropped out of order snapshot")
		return nil
	}
	if !snap.NoDevice {
		r.lastTrack = snap.TrackID
	}
	for _, rec := range r.recs {
		rec.Reconcile(snap)
	}
	return nil
}

func (r *Receiver) waitVisible(ctx context.Context) bool {
	for {
		r.mu.Lock()
		visible, resume := r.visible, r.resume
		r.mu.Unlock()
		if visible {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-resume:
		}
	}
}

// calculateBackoff doubles base per consecutive failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	if failures > 30 {
		return maxBackoff
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(failures)))
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

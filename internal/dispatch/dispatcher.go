// Package dispatch serializes user commands and sends them to Spotify.
//
// Commands are delivered strictly in submission order by a single worker.
// A command waits in the queue for the debounce window; a newer command of
// the same kind submitted inside that window replaces it, so a burst of taps
// or swipes reaches the remote as one call. Play state and volume changes are
// reflected in the shared store immediately as an optimistic overlay, which
// the next snapshot observed after the send replaces.
//
// Transient and rate-limit failures are retried a bounded number of times.
// A missing device is reported at once and never retried. A revoked session
// halts the dispatcher until Resume is called.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/spotigui/spotigui/internal/auth"
	"github.com/spotigui/spotigui/internal/logging"
	"github.com/spotigui/spotigui/internal/spotify"
	"github.com/spotigui/spotigui/internal/state"
)

// ErrHalted is returned by Submit while the dispatcher waits for
// reauthorization.
var ErrHalted = errors.New("dispatcher halted until reauthorization")

// Store is the part of state.Store the dispatcher uses.
type Store interface {
	Snapshot() state.Snapshot
	Apply(state.Overlay)
	Restamp(time.Time)
	ClearOverlay()
}

// Refresher forces a token refresh after the remote rejected a token.
type Refresher interface {
	ForceRefresh(ctx context.Context) error
}

const (
	defaultDebounce     = 300 * time.Millisecond
	defaultMaxRetries   = 3
	defaultRetryBackoff = 250 * time.Millisecond
	resultBuffer        = 32
)

// Options tune the dispatcher.
type Options struct {
	Debounce     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Refresher    Refresher
	Logger       logrus.FieldLogger
}

type entry struct {
	cmd     Command
	first   time.Time
	readyAt time.Time
}

// Dispatcher owns the command queue.
type Dispatcher struct {
	remote spotify.Remote
	store  Store
	opts   Options
	log    logrus.FieldLogger

	mu     sync.Mutex
	queue  []entry
	halted bool

	wake    chan struct{}
	results chan Result
}

// New builds a Dispatcher. Call Run to start delivering.
func New(remote spotify.Remote, store Store, opts Options) *Dispatcher {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Dispatcher{
		remote:  remote,
		store:   store,
		opts:    opts,
		log:     logging.Component(opts.Logger, "dispatch"),
		wake:    make(chan struct{}, 1),
		results: make(chan Result, resultBuffer),
	}
}

// Results delivers command outcomes. Old results are dropped when the reader
// falls behind.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Submit enqueues cmd and applies its optimistic effect. It never blocks on
// the network.
func (d *Dispatcher) Submit(cmd Command) (Command, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = time.Now()
	}

	d.mu.Lock()
	if d.halted {
		d.mu.Unlock()
		return cmd, ErrHalted
	}

	first := cmd.IssuedAt
	kept := d.queue[:0]
	for _, e := range d.queue {
		if e.cmd.Kind == cmd.Kind && cmd.IssuedAt.Sub(e.cmd.IssuedAt) <= d.opts.Debounce {
			if cmd.Kind == KindSeek {
				cmd.OffsetMS += e.cmd.OffsetMS
			}
			if e.first.Before(first) {
				first = e.first
			}
			d.log.WithField("command", e.cmd.String()).WithField("by", cmd.ID).Debug("command superseded")
			continue
		}
		kept = append(kept, e)
	}
	readyAt := cmd.IssuedAt.Add(d.opts.Debounce)
	if limit := first.Add(3 * d.opts.Debounce); readyAt.After(limit) {
		readyAt = limit
	}
	d.queue = append(kept, entry{cmd: cmd, first: first, readyAt: readyAt})
	d.mu.Unlock()

	d.applyOptimistic(cmd)
	d.signal()
	return cmd, nil
}

// Pending returns the number of queued commands.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Halted reports whether the dispatcher is waiting for reauthorization.
func (d *Dispatcher) Halted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halted
}

// Resume re-enables Submit after a new session was authorized.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	d.halted = false
	d.mu.Unlock()
	d.signal()
}

func (d *Dispatcher) halt() {
	d.mu.Lock()
	d.halted = true
	dropped := len(d.queue)
	d.queue = nil
	d.mu.Unlock()
	if dropped > 0 {
		d.log.WithField("dropped", dropped).Info("queue dropped pending reauthorization")
	}
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued commands until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			if n := d.Pending(); n > 0 {
				d.log.WithField("pending", n).Info("dispatcher stopped with queued commands")
			}
			return nil
		}
		cmd, wait, ok := d.next(time.Now())
		if ok {
			d.execute(ctx, cmd)
			continue
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
		case <-d.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// next pops the head command once its debounce window has passed. Otherwise
// it returns how long to wait, or zero when the queue is empty.
func (d *Dispatcher) next(now time.Time) (Command, time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.halted || len(d.queue) == 0 {
		return Command{}, 0, false
	}
	head := d.queue[0]
	if now.Before(head.readyAt) {
		return Command{}, head.readyAt.Sub(now), false
	}
	d.queue = d.queue[1:]
	return head.cmd, 0, true
}

func (d *Dispatcher) execute(ctx context.Context, cmd Command) {
	log := d.log.WithField("command", cmd.String()).WithField("id", cmd.ID)
	refreshed := false

	for attempt := 1; ; attempt++ {
		// Sends run to completion after cancellation; retries do not.
		err := d.send(context.WithoutCancel(ctx), cmd)
		if err == nil {
			d.store.Restamp(time.Now())
			log.WithField("attempts", attempt).Debug("command sent")
			d.report(Result{Command: cmd, Attempts: attempt})
			return
		}

		switch {
		case errors.Is(err, spotify.ErrDeviceUnavailable):
			log.Info("no active device")
			d.fail(cmd, err, attempt)
			return

		case errors.Is(err, auth.ErrReauthorizationRequired):
			d.halt()
			d.fail(cmd, err, attempt)
			return

		case errors.Is(err, spotify.ErrUnauthorized):
			if refreshed || d.opts.Refresher == nil {
				d.halt()
				d.fail(cmd, fmt.Errorf("%w: %v", auth.ErrReauthorizationRequired, err), attempt)
				return
			}
			refreshed = true
			if rerr := d.opts.Refresher.ForceRefresh(ctx); rerr != nil {
				if errors.Is(rerr, auth.ErrReauthorizationRequired) {
					d.halt()
				}
				d.fail(cmd, rerr, attempt)
				return
			}
			continue

		case spotify.IsRetryable(err) && attempt <= d.opts.MaxRetries:
			delay := d.opts.RetryBackoff * time.Duration(attempt)
			if ra := spotify.RetryAfter(err); ra > delay {
				delay = ra
			}
			log.WithError(err).WithField("attempt", attempt).WithField("delay", delay).Debug("retrying command")
			if !sleep(ctx, delay) {
				d.fail(cmd, fmt.Errorf("retry suppressed: %w", err), attempt)
				return
			}
			continue

		default:
			log.WithError(err).WithField("attempts", attempt).Warn("command failed")
			d.fail(cmd, err, attempt)
			return
		}
	}
}

func (d *Dispatcher) fail(cmd Command, err error, attempts int) {
	if affectsOverlay(cmd.Kind) {
		d.store.ClearOverlay()
	}
	d.report(Result{Command: cmd, Err: err, Attempts: attempts})
}

func (d *Dispatcher) send(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case KindPlay:
		if cmd.ContextURI != "" {
			return d.remote.PlayContext(ctx, cmd.ContextURI)
		}
		return d.remote.Play(ctx)
	case KindPause:
		return d.remote.Pause(ctx)
	case KindNext:
		return d.remote.Next(ctx)
	case KindPrevious:
		return d.remote.Previous(ctx)
	case KindSetVolume:
		return d.remote.SetVolume(ctx, cmd.Percent)
	case KindSeek:
		return d.remote.Seek(ctx, d.seekTarget(cmd.OffsetMS))
	case KindTransfer:
		return d.remote.TransferPlayback(ctx, cmd.DeviceID, true)
	default:
		return fmt.Errorf("unknown command kind %v", cmd.Kind)
	}
}

func (d *Dispatcher) seekTarget(offsetMS int) int {
	snap := d.store.Snapshot()
	target := snap.PositionAt(time.Now()) + offsetMS
	if snap.DurationMS > 0 && target > snap.DurationMS {
		target = snap.DurationMS
	}
	if target < 0 {
		target = 0
	}
	return target
}

func (d *Dispatcher) applyOptimistic(cmd Command) {
	o := state.Overlay{Since: cmd.IssuedAt}
	switch cmd.Kind {
	case KindPlay:
		playing := true
		o.IsPlaying = &playing
	case KindPause:
		playing := false
		o.IsPlaying = &playing
	case KindSetVolume:
		v := cmd.Percent
		o.VolumePercent = &v
	default:
		return
	}
	d.store.Apply(o)
}

func affectsOverlay(k Kind) bool {
	return k == KindPlay || k == KindPause || k == KindSetVolume
}

func (d *Dispatcher) report(r Result) {
	select {
	case d.results <- r:
		return
	default:
	}
	select {
	case <-d.results:
	default:
	}
	select {
	case d.results <- r:
	default:
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

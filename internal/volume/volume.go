// Package volume owns mute intent on top of the remote volume.
//
// The remote only knows a volume percentage. Muting is modelled locally: the
// controller remembers the level to restore and sends zero. Observed volumes
// from polling are reconciled against that intent. A change made elsewhere
// while muted ends the mute, so a later Unmute never restores a level the
// user has already moved away from.
package volume

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spotigui/spotigui/internal/dispatch"
	"github.com/spotigui/spotigui/internal/logging"
	"github.com/spotigui/spotigui/internal/state"
)

const defaultSettle = 2 * time.Second

// Sender queues volume commands.
type Sender interface {
	Submit(dispatch.Command) (dispatch.Command, error)
}

// State is the controller's view of the volume. When Muted is set,
// CurrentPercent is zero and PreMutePercent holds the level to restore.
// PreMutePercent is nil otherwise.
type State struct {
	CurrentPercent int
	PreMutePercent *int
	Muted          bool
}

// Valid reports whether s satisfies the mute invariant.
func (s State) Valid() bool {
	if s.Muted {
		return s.CurrentPercent == 0 && s.PreMutePercent != nil
	}
	return s.PreMutePercent == nil
}

// Options tune a Controller.
type Options struct {
	// Settle is how long observations that disagree with our own last
	// command are treated as stale.
	Settle time.Duration
	Logger logrus.FieldLogger
}

type pendingChange struct {
	percent  int
	deadline time.Time
}

// Controller is safe for concurrent use.
type Controller struct {
	sender Sender
	settle time.Duration
	log    logrus.FieldLogger
	now    func() time.Time

	mu      sync.Mutex
	current int
	preMute int
	muted   bool
	pending *pendingChange
}

// New builds a Controller that sends through sender.
func New(sender Sender, opts Options) *Controller {
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	return &Controller{
		sender: sender,
		settle: opts.Settle,
		log:    logging.Component(opts.Logger, "volume"),
		now:    time.Now,
	}
}

// State returns a copy of the current volume state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{CurrentPercent: c.current, Muted: c.muted}
	if c.muted {
		v := c.preMute
		s.PreMutePercent = &v
	}
	return s
}

// Mute stores the current level and sends zero. It does nothing when already
// muted.
func (c *Controller) Mute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		return nil
	}
	if err := c.sendLocked(0); err != nil {
		return err
	}
	c.preMute = c.current
	c.current = 0
	c.muted = true
	c.log.WithField("restore", c.preMute).Debug("muted")
	return nil
}

// Unmute restores the stored level. It does nothing when not muted.
func (c *Controller) Unmute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.muted {
		return nil
	}
	if err := c.sendLocked(c.preMute); err != nil {
		return err
	}
	c.current = c.preMute
	c.preMute = 0
	c.muted = false
	c.log.WithField("percent", c.current).Debug("unmuted")
	return nil
}

// Toggle flips between muted and unmuted.
func (c *Controller) Toggle() error {
	c.mu.Lock()
	muted := c.muted
	c.mu.Unlock()
	if muted {
		return c.Unmute()
	}
	return c.Mute()
}

// SetVolume sets an explicit level and ends any mute.
func (c *Controller) SetVolume(percent int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(clamp(percent))
}

// Step changes the level by delta. Lowering the volume while muted only
// lowers the level that Unmute restores.
func (c *Controller) Step(delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		if delta <= 0 {
			c.preMute = clamp(c.preMute + delta)
			return nil
		}
		return c.setLocked(clamp(c.preMute + delta))
	}
	return c.setLocked(clamp(c.current + delta))
}

func (c *Controller) setLocked(percent int) error {
	if err := c.sendLocked(percent); err != nil {
		return err
	}
	c.current = percent
	c.preMute = 0
	c.muted = false
	return nil
}

func (c *Controller) sendLocked(percent int) error {
	if _, err := c.sender.Submit(dispatch.SetVolume(percent)); err != nil {
		return err
	}
	c.pending = &pendingChange{percent: percent, deadline: c.now().Add(c.settle)}
	return nil
}

// Reconcile folds an observed snapshot into the state. Observations that
// confirm our own pending command clear it. Differing observations made
// inside the settle window are stale and ignored. Everything else is an
// external change.
func (c *Controller) Reconcile(snap state.Snapshot) {
	if snap.IsZero() || snap.NoDevice {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	observed := clamp(snap.VolumePercent)
	if p := c.pending; p != nil {
		if observed == p.percent {
			c.pending = nil
			return
		}
		if snap.ObservedAt.Before(p.deadline) {
			return
		}
		c.pending = nil
	}
	c.externalLocked(observed)
}

// OnExternalVolumeObserved applies a volume change made outside this
// controller.
func (c *Controller) OnExternalVolumeObserved(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.externalLocked(clamp(percent))
}

func (c *Controller) externalLocked(percent int) {
	if c.muted {
		if percent == 0 {
			return
		}
		c.log.WithField("percent", percent).Info("volume changed elsewhere, mute cleared")
		c.muted = false
		c.preMute = 0
	}
	c.current = percent
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

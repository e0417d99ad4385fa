package volume

import (
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/spotigui/spotigui/internal/dispatch"
	"github.com/spotigui/spotigui/internal/spotify"
	"github.com/spotigui/spotigui/internal/state"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []int
	err  error
}

func (r *recordingSender) Submit(cmd dispatch.Command) (dispatch.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return cmd, r.err
	}
	r.sent = append(r.sent, cmd.Percent)
	return cmd, nil
}

func (r *recordingSender) Sent() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.sent...)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newController(t *testing.T, initial int) (*Controller, *recordingSender, *clock) {
	t.Helper()
	sender := &recordingSender{}
	clk := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := New(sender, Options{})
	c.now = clk.now
	c.OnExternalVolumeObserved(initial)
	return c, sender, clk
}

func observe(c *Controller, percent int, at time.Time) {
	c.Reconcile(state.NewSnapshot(&spotify.Playback{DeviceID: "d", VolumePercent: percent}, at))
}

func TestController_MuteAndUnmuteRestoreLevel(t *testing.T) {
	c, sender, _ := newController(t, 40)

	if err := c.Mute(); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	s := c.State()
	if !s.Muted || s.CurrentPercent != 0 || s.PreMutePercent == nil || *s.PreMutePercent != 40 {
		t.Fatalf("state after Mute = %+v, want muted with 40 stored", s)
	}

	if err := c.Unmute(); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	s = c.State()
	if s.Muted || s.CurrentPercent != 40 || s.PreMutePercent != nil {
		t.Fatalf("state after Unmute = %+v, want 40 unmuted", s)
	}
	if got := sender.Sent(); !reflect.DeepEqual(got, []int{0, 40}) {
		t.Fatalf("sent = %v, want [0 40]", got)
	}
}

func TestController_MuteIsIdempotent(t *testing.T) {
	c, sender, _ := newController(t, 70)

	_ = c.Mute()
	once := c.State()
	_ = c.Mute()
	twice := c.State()

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second Mute changed state: %+v -> %+v", once, twice)
	}
	if got := sender.Sent(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("sent = %v, want a single 0", got)
	}
}

func TestController_UnmuteIsIdempotent(t *testing.T) {
	c, sender, _ := newController(t, 70)

	_ = c.Unmute()
	if got := sender.Sent(); len(got) != 0 {
		t.Fatalf("Unmute while unmuted sent %v", got)
	}

	_ = c.Mute()
	_ = c.Unmute()
	once := c.State()
	_ = c.Unmute()
	if twice := c.State(); !reflect.DeepEqual(once, twice) {
		t.Fatalf("second Unmute changed state: %+v -> %+v", once, twice)
	}
	if got := sender.Sent(); !reflect.DeepEqual(got, []int{0, 70}) {
		t.Fatalf("sent = %v, want [0 70]", got)
	}
}

func TestController_ExternalChangeWhileMutedClearsMute(t *testing.T) {
	c, sender, clk := newController(t, 60)

	_ = c.Mute()
	observe(c, 0, clk.t.Add(100*time.Millisecond)) // confirms our mute

	// Someone raises the volume on the phone after the settle window.
	observe(c, 30, clk.t.Add(5*time.Second))

	s := c.State()
	if s.Muted || s.CurrentPercent != 30 || s.PreMutePercent != nil {
		t.Fatalf("state = %+v, want unmuted at 30 with no stored level", s)
	}

	// Unmute must not bring back 60.
	_ = c.Unmute()
	if got := sender.Sent(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("sent = %v, want only the mute", got)
	}
	if got := c.State().CurrentPercent; got != 30 {
		t.Fatalf("CurrentPercent = %d, want 30", got)
	}
}

func TestController_ExternalZeroWhileMutedKeepsMute(t *testing.T) {
	c, _, _ := newController(t, 50)
	_ = c.Mute()

	c.OnExternalVolumeObserved(0)

	s := c.State()
	if !s.Muted || s.PreMutePercent == nil || *s.PreMutePercent != 50 {
		t.Fatalf("state = %+v, want still muted with 50 stored", s)
	}
}

func TestController_StaleObservationInsideSettleWindowIgnored(t *testing.T) {
	c, _, clk := newController(t, 50)
	_ = c.Mute()

	// A poll issued before the mute landed still reports 50.
	observe(c, 50, clk.t.Add(500*time.Millisecond))

	if s := c.State(); !s.Muted {
		t.Fatalf("state = %+v, want stale observation ignored", s)
	}
}

func TestController_UnconfirmedCommandTreatedAsExternalAfterSettle(t *testing.T) {
	c, _, clk := newController(t, 50)
	_ = c.Mute()

	observe(c, 50, clk.t.Add(3*time.Second))

	s := c.State()
	if s.Muted || s.CurrentPercent != 50 {
		t.Fatalf("state = %+v, want unmuted at 50 after the settle window", s)
	}
}

func TestController_SetVolumeClampsAndClearsMute(t *testing.T) {
	c, sender, _ := newController(t, 20)
	_ = c.Mute()

	if err := c.SetVolume(140); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	s := c.State()
	if s.Muted || s.CurrentPercent != 100 || !s.Valid() {
		t.Fatalf("state = %+v, want unmuted at 100", s)
	}
	if got := sender.Sent(); !reflect.DeepEqual(got, []int{0, 100}) {
		t.Fatalf("sent = %v, want [0 100]", got)
	}
}

func TestController_StepWhileMuted(t *testing.T) {
	c, sender, _ := newController(t, 40)
	_ = c.Mute()

	_ = c.Step(-5)
	s := c.State()
	if !s.Muted || *s.PreMutePercent != 35 {
		t.Fatalf("state after Step(-5) = %+v, want muted with 35 stored", s)
	}

	_ = c.Step(5)
	s = c.State()
	if s.Muted || s.CurrentPercent != 40 {
		t.Fatalf("state after Step(5) = %+v, want unmuted at 40", s)
	}
	if got := sender.Sent(); !reflect.DeepEqual(got, []int{0, 40}) {
		t.Fatalf("sent = %v, want [0 40]", got)
	}
}

func TestController_SendFailureLeavesStateUnchanged(t *testing.T) {
	c, sender, _ := newController(t, 40)
	sender.err = dispatch.ErrHalted

	if err := c.Mute(); !errors.Is(err, dispatch.ErrHalted) {
		t.Fatalf("Mute err = %v, want ErrHalted", err)
	}
	if s := c.State(); s.Muted || s.CurrentPercent != 40 {
		t.Fatalf("state = %+v, want unchanged", s)
	}
}

func TestController_NoDeviceSnapshotIgnored(t *testing.T) {
	c, _, clk := newController(t, 40)
	c.Reconcile(state.NewSnapshot(nil, clk.t))
	if got := c.State().CurrentPercent; got != 40 {
		t.Fatalf("CurrentPercent = %d, want 40", got)
	}
}

func TestController_InvariantHoldsForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 200; run++ {
		c, _, clk := newController(t, rng.Intn(101))
		for step := 0; step < 30; step++ {
			switch rng.Intn(6) {
			case 0, 1:
				_ = c.Mute()
			case 2, 3:
				_ = c.Unmute()
			case 4:
				_ = c.Step(rng.Intn(21) - 10)
			case 5:
				clk.t = clk.t.Add(time.Duration(rng.Intn(4000)) * time.Millisecond)
				observe(c, rng.Intn(3)*25, clk.t)
			}
			if s := c.State(); !s.Valid() {
				t.Fatalf("run %d step %d: invalid state %+v", run, step, s)
			}
		}
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spotigui/spotigui/internal/auth"
)

type fakeAuthorizer struct {
	mu            sync.Mutex
	session       bool
	failures      []error
	authorized    int
	invalidations int

	// entered and gate, when set, hold Authorize until the test releases it.
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeAuthorizer) HasSession() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeAuthorizer) Authorize(context.Context) (auth.Session, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorized++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return auth.Session{}, err
	}
	f.session = true
	return auth.Session{AccessToken: "tok"}, nil
}

func (f *fakeAuthorizer) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = false
	f.invalidations++
}

func (f *fakeAuthorizer) counts() (authorized, invalidations int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized, f.invalidations
}

type fakePoller struct {
	started chan struct{}
	exits   chan error
}

func newFakePoller() *fakePoller {
	return &fakePoller{started: make(chan struct{}, 8), exits: make(chan error)}
}

func (f *fakePoller) Run(ctx context.Context) error {
	f.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil
	case err := <-f.exits:
		return err
	}
}

type countingResumer struct {
	mu sync.Mutex
	n  int
}

func (c *countingResumer) Resume() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingResumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type recordingStatus struct {
	mu     sync.Mutex
	values []bool
}

func (r *recordingStatus) SetAuthRequired(v bool) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recordingStatus) last() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return false, false
	}
	return r.values[len(r.values)-1], true
}

type supervisorHarness struct {
	auth    *fakeAuthorizer
	poller  *fakePoller
	resumer *countingResumer
	status  *recordingStatus
	sup     *Supervisor
	failed  chan error
	authed  chan struct{}
	cancel  context.CancelFunc
	done    chan error
}

func startSupervisor(t *testing.T, a *fakeAuthorizer) *supervisorHarness {
	t.Helper()
	h := &supervisorHarness{
		auth:    a,
		poller:  newFakePoller(),
		resumer: &countingResumer{},
		status:  &recordingStatus{},
		failed:  make(chan error, 8),
		authed:  make(chan struct{}, 8),
		done:    make(chan error, 1),
	}
	h.sup = NewSupervisor(a, h.poller, h.resumer, h.status, SupervisorOptions{
		OnAuthorized: func() { h.authed <- struct{}{} },
		OnAuthFailed: func(err error) { h.failed <- err },
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.sup.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Errorf("supervisor did not stop")
		}
	})
	return h
}

func waitSignal[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestSupervisor_CachedSessionPollsWithoutAuthorizing(t *testing.T) {
	h := startSupervisor(t, &fakeAuthorizer{session: true})
	waitSignal(t, h.poller.started, "poller start")

	if authorized, _ := h.auth.counts(); authorized != 0 {
		t.Fatalf("Authorize calls = %d, want 0", authorized)
	}
	if h.resumer.count() != 0 {
		t.Fatalf("Resume calls = %d, want 0", h.resumer.count())
	}
}

func TestSupervisor_AuthorizesThenPolls(t *testing.T) {
	h := startSupervisor(t, &fakeAuthorizer{})
	waitSignal(t, h.authed, "authorized")
	waitSignal(t, h.poller.started, "poller start")

	if h.resumer.count() != 1 {
		t.Fatalf("Resume calls = %d, want 1", h.resumer.count())
	}
	if v, ok := h.status.last(); !ok || v {
		t.Fatalf("last AuthRequired = %v (set %v), want false", v, ok)
	}
}

func TestSupervisor_FailedAuthorizationWaitsForRetry(t *testing.T) {
	h := startSupervisor(t, &fakeAuthorizer{failures: []error{auth.ErrAuthorizationTimeout}})

	err := waitSignal(t, h.failed, "auth failure")
	if !errors.Is(err, auth.ErrAuthorizationTimeout) {
		t.Fatalf("failure = %v, want ErrAuthorizationTimeout", err)
	}
	if v, _ := h.status.last(); !v {
		t.Fatalf("AuthRequired = false after failure, want true")
	}

	time.Sleep(50 * time.Millisecond)
	if authorized, _ := h.auth.counts(); authorized != 1 {
		t.Fatalf("Authorize calls = %d before retry, want 1", authorized)
	}

	h.sup.Retry()
	waitSignal(t, h.authed, "authorized after retry")
	waitSignal(t, h.poller.started, "poller start")
	if authorized, _ := h.auth.counts(); authorized != 2 {
		t.Fatalf("Authorize calls = %d, want 2", authorized)
	}
}

func TestSupervisor_ReauthorizesWhenSessionLost(t *testing.T) {
	h := startSupervisor(t, &fakeAuthorizer{session: true})
	waitSignal(t, h.poller.started, "poller start")

	h.poller.exits <- fmt.Errorf("poll: %w", auth.ErrReauthorizationRequired)

	waitSignal(t, h.authed, "reauthorized")
	waitSignal(t, h.poller.started, "poller restart")
	authorized, invalidations := h.auth.counts()
	if authorized != 1 || invalidations != 1 {
		t.Fatalf("authorized/invalidated = %d/%d, want 1/1", authorized, invalidations)
	}
	if h.resumer.count() != 1 {
		t.Fatalf("Resume calls = %d, want 1", h.resumer.count())
	}
}

func TestSupervisor_RetryWhilePollingStartsOver(t *testing.T) {
	h := startSupervisor(t, &fakeAuthorizer{session: true})
	waitSignal(t, h.poller.started, "poller start")

	h.sup.Retry()

	waitSignal(t, h.authed, "reauthorized")
	waitSignal(t, h.poller.started, "poller restart")
	if _, invalidations := h.auth.counts(); invalidations != 1 {
		t.Fatalf("invalidations = %d, want 1", invalidations)
	}
}

func TestSupervisor_ReturnsUnexpectedPollerError(t *testing.T) {
	h := startSupervisor(t, &fakeAuthorizer{session: true})
	waitSignal(t, h.poller.started, "poller start")

	boom := errors.New("boom")
	h.poller.exits <- boom

	select {
	case err := <-h.done:
		if !errors.Is(err, boom) {
			t.Fatalf("Run = %v, want boom", err)
		}
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}

func TestSupervisor_RetryDuringPromptKeepsNewSession(t *testing.T) {
	a := &fakeAuthorizer{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	h := startSupervisor(t, a)
	waitSignal(t, a.entered, "authorize start")

	// A queued command fails for lack of a session while the prompt is up.
	h.sup.Retry()
	close(a.gate)

	waitSignal(t, h.authed, "authorized")
	waitSignal(t, h.poller.started, "poller start")
	time.Sleep(50 * time.Millisecond)

	authorized, invalidations := a.counts()
	if authorized != 1 || invalidations != 0 {
		t.Fatalf("authorized/invalidated = %d/%d, want 1/0", authorized, invalidations)
	}
}

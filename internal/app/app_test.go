package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/spotigui/spotigui/internal/auth"
	"github.com/spotigui/spotigui/internal/dispatch"
	"github.com/spotigui/spotigui/internal/spotify"
	"github.com/spotigui/spotigui/internal/state"
	"github.com/spotigui/spotigui/internal/ui"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingSender) messages() []tea.Msg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tea.Msg(nil), r.msgs...)
}

func waitMessages(t *testing.T, r *recordingSender, n int) []tea.Msg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := r.messages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("got %d messages, want %d", len(r.messages()), n)
	return nil
}

func TestForwardSnapshots_SendsPublishedSnapshots(t *testing.T) {
	store := &state.Store{}
	sender := &recordingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		forwardSnapshots(ctx, store, sender)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	store.Publish(state.NewSnapshot(&spotify.Playback{TrackID: "t1"}, time.Now()))

	msgs := waitMessages(t, sender, 1)
	snap, ok := msgs[0].(ui.SnapshotMsg)
	if !ok || snap.Snapshot.TrackID != "t1" {
		t.Fatalf("message = %#v, want snapshot of t1", msgs[0])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("forwarder did not stop")
	}
}

func TestForwardResults_ReauthorizationTriggersRetry(t *testing.T) {
	results := make(chan dispatch.Result, 2)
	sender := &recordingSender{}
	var lost int
	var mu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go forwardResults(ctx, results, func() {
		mu.Lock()
		lost++
		mu.Unlock()
	}, sender)

	results <- dispatch.Result{Command: dispatch.Next(), Err: errors.New("boom")}
	results <- dispatch.Result{Command: dispatch.Play(), Err: fmt.Errorf("%w: revoked", auth.ErrReauthorizationRequired)}

	msgs := waitMessages(t, sender, 2)
	for _, m := range msgs {
		if _, ok := m.(ui.ResultMsg); !ok {
			t.Fatalf("message = %#v, want ui.ResultMsg", m)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if lost != 1 {
		t.Fatalf("session lost calls = %d, want 1", lost)
	}
}

func TestLogout_RemovesCacheWithoutCredentials(t *testing.T) {
	for _, name := range []string{"CLIENT_ID", "CLIENT_SECRET", "REDIRECT_URI", "SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_REDIRECT_URI"} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	cache := filepath.Join(dir, "token.json")
	if err := os.WriteFile(cache, []byte(`{"refresh_token":"rt"}`), 0o600); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	settings := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(settings, []byte(fmt.Sprintf("token_cache = %q\n", cache)), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := Logout(Options{ConfigPath: settings}); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := os.Stat(cache); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("token cache still present: %v", err)
	}
}

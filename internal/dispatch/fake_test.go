package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/spotigui/spotigui/internal/spotify"
)

// fakeRemote records calls and replays scripted errors per operation.
type fakeRemote struct {
	mu     sync.Mutex
	calls  []string
	errs   map[string][]error
	onCall func(op string)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{errs: map[string][]error{}}
}

func (f *fakeRemote) script(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = append(f.errs[op], errs...)
}

func (f *fakeRemote) record(op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	hook := f.onCall
	var err error
	name := op
	if i := indexByte(op, ':'); i >= 0 {
		name = op[:i]
	}
	if queue := f.errs[name]; len(queue) > 0 {
		err = queue[0]
		f.errs[name] = queue[1:]
	}
	f.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return err
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) CurrentPlayback(context.Context) (*spotify.Playback, error) {
	return nil, nil
}
func (f *fakeRemote) Play(context.Context) error { return f.record("play") }
func (f *fakeRemote) PlayContext(_ context.Context, uri string) error {
	return f.record("play:" + uri)
}
func (f *fakeRemote) Pause(context.Context) error    { return f.record("pause") }
func (f *fakeRemote) Next(context.Context) error     { return f.record("next") }
func (f *fakeRemote) Previous(context.Context) error { return f.record("previous") }
func (f *fakeRemote) SetVolume(_ context.Context, p int) error {
	return f.record(fmt.Sprintf("volume:%d", p))
}
func (f *fakeRemote) Seek(_ context.Context, pos int) error {
	return f.record(fmt.Sprintf("seek:%d", pos))
}
func (f *fakeRemote) Devices(context.Context) ([]spotify.Device, error) { return nil, nil }
func (f *fakeRemote) TransferPlayback(_ context.Context, id string, _ bool) error {
	return f.record("transfer:" + id)
}
func (f *fakeRemote) Playlists(context.Context, int, int) (spotify.PlaylistPage, error) {
	return spotify.PlaylistPage{Next: -1}, nil
}

package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/spotigui/spotigui/internal/auth"
	"github.com/spotigui/spotigui/internal/dispatch"
	"github.com/spotigui/spotigui/internal/prefs"
	"github.com/spotigui/spotigui/internal/spotify"
	"github.com/spotigui/spotigui/internal/state"
)

// Messages sent into the program from background goroutines.

// SnapshotMsg carries a newly published playback view.
type SnapshotMsg struct{ Snapshot state.Snapshot }

// ResultMsg carries the outcome of a dispatched command.
type ResultMsg struct{ Result dispatch.Result }

// PromptMsg asks the user to authorize.
type PromptMsg struct{ Prompt auth.Prompt }

// AuthFailedMsg reports a failed authorization attempt.
type AuthFailedMsg struct{ Err error }

// AuthorizedMsg reports that a session is available again.
type AuthorizedMsg struct{}

type tickMsg time.Time

type devicesMsg struct {
	devices []spotify.Device
	err     error
}

type playlistsMsg struct {
	page   spotify.PlaylistPage
	cursor int
	err    error
}

type prefsSavedMsg struct{ err error }

const requestTimeout = 10 * time.Second

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func loadDevicesCmd(ctx context.Context, lib Library) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		devices, err := lib.Devices(ctx)
		return devicesMsg{devices: devices, err: err}
	}
}

func loadPlaylistsCmd(ctx context.Context, lib Library, cursor, limit int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		page, err := lib.Playlists(ctx, cursor, limit)
		return playlistsMsg{page: page, cursor: cursor, err: err}
	}
}

func rememberDeviceCmd(path, id, name string) tea.Cmd {
	return func() tea.Msg {
		return prefsSavedMsg{err: prefs.RememberDevice(path, id, name)}
	}
}

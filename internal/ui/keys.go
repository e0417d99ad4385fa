package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit      key.Binding
	Help      key.Binding
	RetryAuth key.Binding

	// Transport
	PlayPause  key.Binding
	Next       key.Binding
	Previous   key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Mute       key.Binding
	SeekBack   key.Binding
	SeekFwd    key.Binding

	// Pickers
	Devices   key.Binding
	Playlists key.Binding
	Up        key.Binding
	Down      key.Binding
	MorePage  key.Binding
	Confirm   key.Binding
	Escape    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "Toggle help"),
		),
		RetryAuth: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Retry authorization"),
		),

		PlayPause: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "Play/pause"),
		),
		Next: key.NewBinding(
			key.WithKeys("n", "right"),
			key.WithHelp("n", "Next track"),
		),
		Previous: key.NewBinding(
			key.WithKeys("p", "left"),
			key.WithHelp("p", "Previous track"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "Volume up"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "Volume down"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Mute/unmute"),
		),
		SeekBack: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "Back 10s"),
		),
		SeekFwd: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "Forward 10s"),
		),

		Devices: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Devices"),
		),
		Playlists: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Playlists"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		MorePage: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("pgdown", "Load more"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Select"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Close"),
		),
	}
}

// ShortHelp returns key bindings for the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PlayPause, k.Next, k.Previous, k.Mute, k.Devices, k.Playlists, k.Help, k.Quit}
}

// FullHelp returns key bindings for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.PlayPause, k.Next, k.Previous, k.SeekBack, k.SeekFwd},
		{k.VolumeUp, k.VolumeDown, k.Mute},
		{k.Devices, k.Playlists, k.Up, k.Down, k.Confirm, k.Escape},
		{k.RetryAuth, k.Help, k.Quit},
	}
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/spotigui/spotigui/internal/dispatch"
)

func (m Model) openDevices() (tea.Model, tea.Cmd) {
	m.overlay = overlayDevices
	if m.library == nil {
		return m, nil
	}
	m.devicePicker = picker{loading: true}
	return m, loadDevicesCmd(m.ctx, m.library)
}

func (m Model) openPlaylists() (tea.Model, tea.Cmd) {
	m.overlay = overlayPlaylists
	if m.library == nil {
		return m, nil
	}
	m.playlistPicker = picker{loading: true}
	m.playlists = nil
	m.playlistNext = -1
	return m, loadPlaylistsCmd(m.ctx, m.library, 0, m.pageSize)
}

// preferredDeviceIndex selects the active device, then the remembered one.
func (m Model) preferredDeviceIndex() int {
	for i, d := range m.devices {
		if d.Active {
			return i
		}
	}
	for i, d := range m.devices {
		if d.ID == m.prefs.DeviceID {
			return i
		}
	}
	return 0
}

func (m Model) handleDeviceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.Devices):
		m.overlay = overlayNone
	case key.Matches(msg, m.keys.Up):
		m.devicePicker.cursor = clampInt(m.devicePicker.cursor-1, 0, max(len(m.devices)-1, 0))
	case key.Matches(msg, m.keys.Down):
		m.devicePicker.cursor = clampInt(m.devicePicker.cursor+1, 0, max(len(m.devices)-1, 0))
	case key.Matches(msg, m.keys.Confirm):
		if len(m.devices) == 0 {
			return m, nil
		}
		d := m.devices[m.devicePicker.cursor]
		m.overlay = overlayNone
		if d.Restricted {
			m.setStatus(fmt.Sprintf("%s cannot be controlled remotely", d.Name), statusWarn)
			return m, nil
		}
		if m.commands == nil {
			return m, nil
		}
		if _, err := m.commands.Submit(dispatch.Transfer(d.ID)); err != nil {
			m.reportError(err)
			return m, nil
		}
		m.prefs.DeviceID, m.prefs.DeviceName = d.ID, d.Name
		m.setStatus("Playing on "+d.Name, statusInfo)
		if m.prefsPath == "" {
			return m, nil
		}
		return m, rememberDeviceCmd(m.prefsPath, d.ID, d.Name)
	}
	return m, nil
}

func (m Model) handlePlaylistKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.Playlists):
		m.overlay = overlayNone
	case key.Matches(msg, m.keys.Up):
		m.playlistPicker.cursor = clampInt(m.playlistPicker.cursor-1, 0, max(len(m.playlists)-1, 0))
	case key.Matches(msg, m.keys.Down):
		last := len(m.playlists) - 1
		if m.playlistPicker.cursor == last && m.playlistNext >= 0 && !m.playlistPicker.loading {
			return m.loadMorePlaylists()
		}
		m.playlistPicker.cursor = clampInt(m.playlistPicker.cursor+1, 0, max(last, 0))
	case key.Matches(msg, m.keys.MorePage):
		return m.loadMorePlaylists()
	case key.Matches(msg, m.keys.Confirm):
		if len(m.playlists) == 0 {
			return m, nil
		}
		p := m.playlists[m.playlistPicker.cursor]
		m.overlay = overlayNone
		next, cmd := m.submit(dispatch.PlayContext(p.URI))
		nm := next.(Model)
		if nm.status == "" {
			nm.setStatus("Starting "+p.Name, statusInfo)
		}
		return nm, cmd
	}
	return m, nil
}

func (m Model) loadMorePlaylists() (tea.Model, tea.Cmd) {
	if m.playlistNext < 0 || m.playlistPicker.loading || m.library == nil {
		return m, nil
	}
	m.playlistPicker.loading = true
	return m, loadPlaylistsCmd(m.ctx, m.library, m.playlistNext, m.pageSize)
}

func (m Model) renderDevices() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.Title.Render("Devices"))
	b.WriteString("\n\n")

	switch {
	case m.devicePicker.loading:
		b.WriteString(styles.MutedText.Render(m.spinner.View() + " Loading devices"))
	case m.devicePicker.err != nil:
		b.WriteString(styles.DangerText.Render("Could not load devices"))
		b.WriteString("\n")
		b.WriteString(styles.MutedText.Render(truncate(m.devicePicker.err.Error(), 50)))
	case len(m.devices) == 0:
		b.WriteString(styles.MutedText.Render("No devices found. Open Spotify on a phone, computer or speaker."))
	default:
		for i, d := range m.devices {
			marker := "  "
			if d.Active {
				marker = "▶ "
			}
			line := marker + padRight(truncate(d.Name, 28), 28) + " " + styles.FaintText.Render(d.Type)
			if d.ID == m.prefs.DeviceID && !d.Active {
				line += styles.FaintText.Render("  last used")
			}
			if i == m.devicePicker.cursor {
				line = styles.Selected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render("enter select · esc close"))
	return m.placeModal(styles.Modal.Width(52).Render(b.String()))
}

func (m Model) renderPlaylists() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.Title.Render("Playlists"))
	if m.playlistTotal > 0 {
		b.WriteString(styles.FaintText.Render(fmt.Sprintf("  %d of %d", len(m.playlists), m.playlistTotal)))
	}
	b.WriteString("\n\n")

	switch {
	case m.playlistPicker.err != nil:
		b.WriteString(styles.DangerText.Render("Could not load playlists"))
		b.WriteString("\n")
		b.WriteString(styles.MutedText.Render(truncate(m.playlistPicker.err.Error(), 50)))
	case len(m.playlists) == 0 && m.playlistPicker.loading:
		b.WriteString(styles.MutedText.Render(m.spinner.View() + " Loading playlists"))
	case len(m.playlists) == 0:
		b.WriteString(styles.MutedText.Render("No playlists yet."))
	default:
		for i, p := range m.playlists {
			line := padRight(truncate(p.Name, 34), 34) + " " + styles.FaintText.Render(fmt.Sprintf("%d tracks", p.TrackCount))
			if i == m.playlistPicker.cursor {
				line = styles.Selected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		if m.playlistPicker.loading {
			b.WriteString(styles.MutedText.Render(m.spinner.View() + " Loading more"))
			b.WriteString("\n")
		} else if m.playlistNext >= 0 {
			b.WriteString(styles.FaintText.Render("pgdown for more"))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render("enter play · esc close"))
	return m.placeModal(styles.Modal.Width(56).Render(b.String()))
}

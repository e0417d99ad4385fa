package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const logo = "♫ spotigui"

func (m Model) renderNowPlaying() string {
	styles := m.theme.Styles()

	header := m.renderHeader()
	footer := m.renderFooter()

	var body string
	switch {
	case m.snapshot.IsZero():
		body = styles.MutedText.Render(m.spinner.View() + " Connecting to Spotify…")
	case m.snapshot.NoDevice:
		body = m.renderNoDevice()
	default:
		body = m.renderTrack()
	}

	panelWidth := clampInt(m.width-4, 20, 90)
	panel := styles.Panel.Width(panelWidth).Render(body)

	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyHeight < lipgloss.Height(panel) {
		bodyHeight = lipgloss.Height(panel)
	}
	middle := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, panel)

	return lipgloss.JoinVertical(lipgloss.Left, header, middle, footer)
}

func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	left := styles.Logo.Render(logo)

	var right string
	switch {
	case m.healthState.IsOffline():
		right = styles.WarningText.Render(m.spinner.View() + " Reconnecting…")
	case m.snapshot.ControlsEnabled() && m.snapshot.DeviceName != "":
		right = styles.MutedText.Render("on " + m.snapshot.DeviceName)
	}

	gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return styles.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderTrack() string {
	styles := m.theme.Styles()
	snap := m.snapshot
	width := clampInt(m.width-12, 10, 80)

	title := snap.TrackName
	if title == "" {
		title = "Nothing playing"
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render(truncate(title, width)))
	b.WriteString("\n")
	if artists := snap.ArtistLine(); artists != "" {
		b.WriteString(styles.Text.Render(truncate(artists, width)))
		b.WriteString("\n")
	}
	if snap.AlbumName != "" {
		b.WriteString(styles.MutedText.Render(truncate(snap.AlbumName, width)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.progress.ViewAs(snap.Progress(m.now)))
	b.WriteString("\n")
	elapsed := snap.Elapsed(m.now)
	remaining := "-" + snap.Remaining(m.now)
	gap := m.progress.Width - lipgloss.Width(elapsed) - lipgloss.Width(remaining)
	if gap < 1 {
		gap = 1
	}
	b.WriteString(styles.FaintText.Render(elapsed + strings.Repeat(" ", gap) + remaining))
	b.WriteString("\n\n")

	state := styles.MutedText.Render("❚❚ Paused")
	if snap.IsPlaying {
		state = styles.SuccessText.Render("▶ Playing")
	}
	b.WriteString(state)
	b.WriteString("   ")
	b.WriteString(m.renderVolume())
	return b.String()
}

func (m Model) renderVolume() string {
	styles := m.theme.Styles()
	if m.volume != nil {
		vs := m.volume.State()
		if vs.Muted {
			line := "Muted"
			if vs.PreMutePercent != nil {
				line = fmt.Sprintf("Muted, restoring %d%%", *vs.PreMutePercent)
			}
			return styles.WarningText.Render(line)
		}
	}
	return styles.MutedText.Render(fmt.Sprintf("Volume %d%%", m.snapshot.VolumePercent))
}

func (m Model) renderNoDevice() string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.Title.Render("Nothing is playing"))
	b.WriteString("\n\n")
	b.WriteString(styles.MutedText.Render(noDeviceHint))
	if m.prefs.DeviceName != "" {
		b.WriteString("\n")
		b.WriteString(styles.FaintText.Render("Last used: " + m.prefs.DeviceName))
	}
	return b.String()
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	limit := m.width - 2
	if m.status != "" {
		text := truncate(m.status, limit)
		switch m.statusKind {
		case statusWarn:
			text = styles.WarningText.Render(text)
		case statusError:
			text = styles.DangerText.Render(text)
		default:
			text = styles.AccentText.Render(text)
		}
		return styles.Footer.Width(m.width).Render(text)
	}

	parts := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return styles.Footer.Width(m.width).Render(truncate(strings.Join(parts, " · "), limit))
}

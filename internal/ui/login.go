package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spotigui/spotigui/internal/auth"
)

// renderLogin shows the authorization prompt, or why the last attempt failed.
func (m Model) renderLogin() string {
	styles := m.theme.Styles()
	width := clampInt(m.width-8, 20, 100)

	var b strings.Builder
	b.WriteString(styles.Logo.Render(logo))
	b.WriteString("\n\n")

	switch {
	case m.auth.err != nil:
		b.WriteString(styles.DangerText.Render(authFailureText(m.auth.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.MutedText.Render("Press r to try again, q to quit."))

	case m.auth.prompt != nil:
		p := m.auth.prompt
		b.WriteString(styles.Title.Render("Sign in to Spotify"))
		b.WriteString("\n")
		b.WriteString(styles.MutedText.Render("Scan the code with your phone or open the link below."))
		b.WriteString("\n\n")
		if p.QR != "" && lineCount(p.QR)+12 <= m.height {
			b.WriteString(p.QR)
			b.WriteString("\n")
		}
		b.WriteString(styles.AccentText.Width(width).Render(p.URL))
		b.WriteString("\n\n")
		b.WriteString(styles.MutedText.Render(m.spinner.View() + " Waiting for authorization " + countdown(p.Deadline, m.now)))

	case m.auth.waiting:
		b.WriteString(styles.MutedText.Render(m.spinner.View() + " Preparing authorization…"))

	default:
		b.WriteString(styles.WarningText.Render("Sign in to Spotify to continue."))
		b.WriteString("\n\n")
		b.WriteString(styles.MutedText.Render("Press r to sign in, q to quit."))
	}

	return m.placeModal(b.String())
}

func authFailureText(err error) string {
	switch {
	case errors.Is(err, auth.ErrAuthorizationTimeout):
		return "Authorization timed out."
	case errors.Is(err, auth.ErrAuthorizationDenied):
		return "Authorization was denied."
	default:
		return fmt.Sprintf("Authorization failed: %v", err)
	}
}

func countdown(deadline, now time.Time) string {
	left := deadline.Sub(now).Truncate(time.Second)
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("(%d:%02d left)", int(left.Minutes()), int(left.Seconds())%60)
}

func lineCount(s string) int {
	return strings.Count(strings.TrimRight(s, "\n"), "\n") + 1
}

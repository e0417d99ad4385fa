package ui

import tea "github.com/charmbracelet/bubbletea"

// minSwipeCells is the horizontal distance a drag must cover to count.
const minSwipeCells = 8

type swipe int

const (
	swipeNone swipe = iota
	swipeLeft
	swipeRight
)

// classifySwipe turns a drag vector into a swipe. Vertical drift must stay
// under half the horizontal distance.
func classifySwipe(dx, dy int) swipe {
	adx := abs(dx)
	if adx < minSwipeCells || abs(dy)*2 >= adx {
		return swipeNone
	}
	if dx > 0 {
		return swipeRight
	}
	return swipeLeft
}

// swipeTracker follows one left-button drag at a time.
type swipeTracker struct {
	active         bool
	startX, startY int
}

func (s *swipeTracker) handle(msg tea.MouseMsg) swipe {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button == tea.MouseButtonLeft {
			s.active = true
			s.startX, s.startY = msg.X, msg.Y
		}
	case tea.MouseActionRelease:
		if !s.active {
			return swipeNone
		}
		s.active = false
		return classifySwipe(msg.X-s.startX, msg.Y-s.startY)
	}
	return swipeNone
}

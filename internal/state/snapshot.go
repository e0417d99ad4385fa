package state

import (
	"fmt"
	"time"

	"github.com/spotigui/spotigui/internal/spotify"
)

// Snapshot is an immutable capture of remote playback state. A newer snapshot
// replaces an older one entirely.
type Snapshot struct {
	spotify.Playback

	// NoDevice is set when the remote reported no active playback device.
	NoDevice bool `json:"no_device"`
	// TrackChanged is set when TrackID differs from the last snapshot that had
	// a device.
	TrackChanged bool `json:"track_changed"`
	// ObservedAt is when the fetch that produced the snapshot was issued.
	ObservedAt time.Time `json:"observed_at"`
}

// NewSnapshot builds a snapshot from a fetch result. A nil playback produces
// the no-device variant.
func NewSnapshot(pb *spotify.Playback, observedAt time.Time) Snapshot {
	if pb == nil {
		return Snapshot{NoDevice: true, ObservedAt: observedAt}
	}
	snap := Snapshot{Playback: *pb, ObservedAt: observedAt}
	if len(pb.Artists) > 0 {
		snap.Artists = append([]string(nil), pb.Artists...)
	}
	return snap
}

// IsZero reports whether nothing has been observed yet.
func (s Snapshot) IsZero() bool {
	return s.ObservedAt.IsZero()
}

// ControlsEnabled reports whether transport commands make sense.
func (s Snapshot) ControlsEnabled() bool {
	return !s.IsZero() && !s.NoDevice
}

// PositionAt returns the playhead position at now. While playing, the position
// advances from this snapshot's own position and observation time only.
func (s Snapshot) PositionAt(now time.Time) int {
	pos := s.PositionMS
	if s.IsPlaying && !s.ObservedAt.IsZero() && now.After(s.ObservedAt) {
		pos += int(now.Sub(s.ObservedAt) / time.Millisecond)
	}
	if s.DurationMS > 0 && pos > s.DurationMS {
		pos = s.DurationMS
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// Progress returns the played fraction in [0, 1] at now.
func (s Snapshot) Progress(now time.Time) float64 {
	if s.DurationMS <= 0 {
		return 0
	}
	return float64(s.PositionAt(now)) / float64(s.DurationMS)
}

// Elapsed formats the elapsed time at now.
func (s Snapshot) Elapsed(now time.Time) string {
	return FormatClock(s.PositionAt(now))
}

// Remaining formats the remaining time at now.
func (s Snapshot) Remaining(now time.Time) string {
	return FormatRemaining(s.DurationMS, s.PositionAt(now))
}

// FormatClock renders milliseconds as M:SS, or H:MM:SS from one hour up.
// Partial seconds are truncated.
func FormatClock(ms int) string {
	if ms < 0 {
		ms = 0
	}
	return formatSeconds(ms / 1000)
}

// FormatRemaining renders the time left in a track. Both values are truncated
// to whole seconds before subtracting, so 180000/65000 renders as 1:55.
func FormatRemaining(durationMS, positionMS int) string {
	if durationMS < 0 {
		durationMS = 0
	}
	if positionMS < 0 {
		positionMS = 0
	}
	left := durationMS/1000 - positionMS/1000
	if left < 0 {
		left = 0
	}
	return formatSeconds(left)
}

func formatSeconds(total int) string {
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

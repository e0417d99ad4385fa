package dispatch

import (
	"fmt"
	"time"
)

// Kind identifies a user command. Commands of the same kind debounce each
// other.
type Kind int

const (
	KindPlay Kind = iota + 1
	KindPause
	KindNext
	KindPrevious
	KindSetVolume
	KindSeek
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindPause:
		return "pause"
	case KindNext:
		return "next"
	case KindPrevious:
		return "previous"
	case KindSetVolume:
		return "set_volume"
	case KindSeek:
		return "seek"
	case KindTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command is a single user intent. Only the payload field matching Kind is
// used.
type Command struct {
	ID   string
	Kind Kind

	// Percent is the target volume for KindSetVolume.
	Percent int
	// OffsetMS is the relative jump for KindSeek.
	OffsetMS int
	// DeviceID is the target for KindTransfer.
	DeviceID string
	// ContextURI optionally starts a playlist or album for KindPlay.
	ContextURI string

	IssuedAt time.Time
}

func (c Command) String() string {
	switch c.Kind {
	case KindSetVolume:
		return fmt.Sprintf("%s(%d)", c.Kind, c.Percent)
	case KindSeek:
		return fmt.Sprintf("%s(%+dms)", c.Kind, c.OffsetMS)
	case KindTransfer:
		return fmt.Sprintf("%s(%s)", c.Kind, c.DeviceID)
	case KindPlay:
		if c.ContextURI != "" {
			return fmt.Sprintf("%s(%s)", c.Kind, c.ContextURI)
		}
	}
	return c.Kind.String()
}

// Play resumes playback.
func Play() Command { return Command{Kind: KindPlay} }

// PlayContext starts a playlist, album or artist context.
func PlayContext(uri string) Command { return Command{Kind: KindPlay, ContextURI: uri} }

// Pause pauses playback.
func Pause() Command { return Command{Kind: KindPause} }

// Next skips forward.
func Next() Command { return Command{Kind: KindNext} }

// Previous skips back.
func Previous() Command { return Command{Kind: KindPrevious} }

// SetVolume sets an absolute volume.
func SetVolume(percent int) Command { return Command{Kind: KindSetVolume, Percent: percent} }

// Seek jumps relative to the current position.
func Seek(offsetMS int) Command { return Command{Kind: KindSeek, OffsetMS: offsetMS} }

// Transfer moves playback to another device.
func Transfer(deviceID string) Command {
	return Command{Kind: KindTransfer, DeviceID: deviceID}
}

// Result reports the outcome of a command that reached the worker.
type Result struct {
	Command  Command
	Err      error
	Attempts int
}

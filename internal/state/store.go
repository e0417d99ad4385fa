package state

import (
	"fmt"
	"sync"
	"time"
)

// Overlay is a local optimistic effect shown until a snapshot observed after
// Since arrives.
type Overlay struct {
	IsPlaying     *bool
	VolumePercent *int
	Since         time.Time
}

func (o Overlay) empty() bool {
	return o.IsPlaying == nil && o.VolumePercent == nil
}

// Health describes the polling loop as seen by the store.
type Health struct {
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int
	AuthRequired        bool
}

// IsOffline returns true when the API has been unreachable for multiple polls.
func (h Health) IsOffline() bool {
	return h.ConsecutiveFailures >= 2
}

// Store coordinates concurrent access to the latest snapshot. The zero value is
// ready to use.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
	overlay Overlay
	health  Health
	subs    map[int]chan Snapshot
	nextSub int
}

// Publish installs snap unless a newer snapshot is already held. It reports
// whether snap was accepted.
func (s *Store) Publish(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current.IsZero() && snap.ObservedAt.Before(s.current.ObservedAt) {
		return false
	}
	s.current = snap
	if !s.overlay.empty() && !snap.ObservedAt.Before(s.overlay.Since) {
		s.overlay = Overlay{}
	}
	s.health.LastUpdated = time.Now()
	s.health.LastError = nil
	s.health.ConsecutiveFailures = 0
	s.health.AuthRequired = false
	s.notifyLocked()
	return true
}

// RecordFailure keeps the last good snapshot and records err.
func (s *Store) RecordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.health.LastError = err
	s.health.LastUpdated = time.Now()
	s.health.ConsecutiveFailures++
}

// SetAuthRequired flags that polling stopped until the user authorizes again.
func (s *Store) SetAuthRequired(required bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.AuthRequired = required
}

// Apply merges an optimistic effect into the overlay.
func (s *Store) Apply(o Overlay) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.IsPlaying != nil {
		v := *o.IsPlaying
		s.overlay.IsPlaying = &v
	}
	if o.VolumePercent != nil {
		v := *o.VolumePercent
		s.overlay.VolumePercent = &v
	}
	if o.Since.After(s.overlay.Since) {
		s.overlay.Since = o.Since
	}
	s.notifyLocked()
}

// Restamp moves the overlay deadline so that snapshots observed before at do
// not clear it.
func (s *Store) Restamp(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.overlay.empty() && at.After(s.overlay.Since) {
		s.overlay.Since = at
	}
}

// ClearOverlay drops any optimistic effect.
func (s *Store) ClearOverlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay.empty() {
		return
	}
	s.overlay = Overlay{}
	s.notifyLocked()
}

// Latest returns the last accepted snapshot without local effects.
func (s *Store) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshot(s.current)
}

// Snapshot returns the last accepted snapshot with local effects applied.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}

// Health returns a copy of the polling health.
func (s *Store) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.health
	if s.health.LastError != nil {
		h.LastError = fmt.Errorf("%w", s.health.LastError)
	}
	return h
}

// Subscribe returns a channel that always holds the most recent view. Slow
// readers skip intermediate snapshots. Call cancel to unsubscribe.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		s.subs = make(map[int]chan Snapshot)
	}
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	if !s.current.IsZero() {
		ch <- s.viewLocked()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) viewLocked() Snapshot {
	snap := cloneSnapshot(s.current)
	if s.overlay.IsPlaying != nil {
		snap.IsPlaying = *s.overlay.IsPlaying
	}
	if s.overlay.VolumePercent != nil {
		snap.VolumePercent = *s.overlay.VolumePercent
	}
	return snap
}

func (s *Store) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	view := s.viewLocked()
	for _, ch := range s.subs {
		select {
		case ch <- view:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- view:
			default:
			}
		}
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	if len(s.Artists) > 0 {
		s.Artists = append([]string(nil), s.Artists...)
	}
	return s
}

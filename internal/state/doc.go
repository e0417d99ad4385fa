// Package state holds the playback snapshot shared between the polling loop,
// the command dispatcher and the UI.
//
// # Overview
//
// The Store keeps the last accepted Snapshot together with polling health and
// an optional optimistic Overlay. It is the hand-off point between the
// background goroutines that talk to Spotify and the interactive goroutine that
// renders.
//
// # Ordering
//
// Snapshots are totally ordered by ObservedAt. Publish drops a snapshot older
// than the one already held, so a delayed delivery can never roll the display
// back:
//
//	store.Publish(t2) // accepted
//	store.Publish(t1) // dropped, t1 < t2
//
// A snapshot is never merged field by field with its predecessor.
//
// # Optimistic Effects
//
// The dispatcher applies an Overlay as soon as a command is submitted (play
// state, volume). Snapshot() returns the authoritative snapshot with the
// overlay applied. The overlay is discarded by the first snapshot observed at
// or after Overlay.Since; the dispatcher moves Since forward with Restamp once
// the remote has acknowledged the command, and clears the overlay when the
// command fails.
//
// # Subscriptions
//
// Subscribe returns a one-slot channel that always holds the newest view.
// Sends never block the publisher; a slow reader simply skips intermediate
// snapshots.
//
// # Time Display
//
// Elapsed and remaining time are derived from a single snapshot's PositionMS,
// DurationMS and ObservedAt. Both are truncated to whole seconds and rendered
// as M:SS (H:MM:SS from one hour up); 180000ms with 65000ms played renders
// "1:55" remaining.
package state

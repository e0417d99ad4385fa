// Package ui provides the terminal remote control for Spotify playback.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program. Model owns everything shown on screen and is
// fed from outside by messages: snapshots from the state store, command
// results from the dispatcher and authorization prompts from the session
// supervisor. The UI never talks to Spotify directly for playback; it submits
// commands and renders whatever the store publishes, including optimistic
// play state and volume.
//
// # Package Structure
//
//   - app.go: Model, Update, key and mouse handling, NewProgram
//   - nowplaying.go: header, track panel, progress bar and footer
//   - login.go: the authorization screen with QR code and countdown
//   - pickers.go: device and playlist overlays
//   - gesture.go: mouse drag classification for swipe-to-skip
//   - help.go: the keyboard shortcut overlay
//   - messages.go: messages and commands that run off the update loop
//   - keys.go, theme.go, strings.go: bindings, the palette and text helpers
//
// # Screens
//
// One screen is rendered at a time, in this order of precedence: help,
// device picker, playlist picker, login, now playing. The now playing screen
// has three states: connecting (no snapshot yet), no device and a track.
//
// # Focus
//
// The program enables terminal focus reporting. Losing focus tells the
// Visibility dependency to suspend polling; regaining it resumes.
//
// # Key Bindings
//
//   - space: Play or pause
//   - n / p: Next and previous track (also right and left)
//   - [ / ]: Seek 10 seconds
//   - + / -: Volume up and down
//   - m: Mute or unmute
//   - d: Device picker
//   - l: Playlist picker
//   - r: Retry authorization
//   - ?: Help
//   - q or Ctrl+C: Exit
package ui

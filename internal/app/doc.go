// Package app provides the orchestration layer for spotigui.
//
// # Overview
//
// This package wires configuration, the session, polling, command dispatch
// and the terminal UI into one running program. It is the composition root:
// every dependency is built here and handed to the pieces that use it, and
// nothing outside this package knows how the others are connected.
//
// # Architecture
//
// Run follows a fixed startup sequence:
//
//  1. Load configuration (.env, environment, ~/.config/spotigui/config.toml)
//  2. Open the log file; the terminal belongs to the UI
//  3. Restore the cached session, if any
//  4. Build the Spotify client, state store, dispatcher and volume controller
//  5. Build the receiver and the session supervisor
//  6. Start every background goroutine under one errgroup and run the UI
//
// # Components
//
//   - app.go: Run, Logout and the forwarders that feed the UI
//   - receiver.go: the polling loop that publishes playback snapshots
//   - supervisor.go: keeps a session alive and restarts polling after reauthorization
//
// # Data Flow
//
//	┌──────────────┐ Send(Snapshot)  ┌──────────┐ Submit  ┌────────────┐
//	│ state.Store  │────────────────>│    ui    │────────>│ dispatcher │
//	└──────▲───────┘                 └────▲─────┘         └─────┬──────┘
//	       │ Publish                      │ Send(Result)        │ Play, Next, ...
//	┌──────┴───────┐ CurrentPlayback ┌────┴─────────────────────▼──────┐
//	│   Receiver   │────────────────>│         spotify.Client          │
//	└──────▲───────┘                 └─────────────────────────────────┘
//	       │ Run / restart
//	┌──────┴───────┐ Authorize       ┌──────────────┐
//	│  Supervisor  │────────────────>│ auth.Manager │
//	└──────────────┘                 └──────────────┘
//
// The UI only changes state inside its own update loop. Everything produced
// elsewhere reaches it through tea.Program.Send.
//
// # Polling Behavior
//
// The receiver polls once per poll_interval (default 1s) while the terminal
// has focus. Each tick validates the token, fetches the player state and
// publishes a snapshot. Failures back off exponentially from the interval to
// a 30 second cap and reset on the next success. A rate limit response waits
// at least as long as Retry-After. A rejected token is refreshed once; if the
// remote still rejects it, polling stops and the supervisor takes over.
//
// # Error Handling
//
// Fatal errors (returned from Run):
//   - Missing or invalid configuration
//   - Unopenable log file
//   - Terminal failures from the UI
//
// Recoverable errors (shown in the UI, the program keeps running):
//   - Authorization timeouts, denials and busy callback ports
//   - Poll failures and rate limits
//   - Command failures, including a missing playback device
//
// # Usage Example
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := app.Run(ctx, app.Options{PollInterval: 500 * time.Millisecond}); err != nil {
//		log.Fatalf("spotigui: %v", err)
//	}
package app

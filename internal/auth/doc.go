// Package auth owns the Spotify authorization session.
//
// # Overview
//
// Manager is the single owner of the Session. It runs the headless
// authorization code flow, refreshes access tokens and persists the session
// in a JSON token cache. Everything else asks for credentials through
// ValidToken or TokenSource and never touches Session fields.
//
// # Headless Flow
//
// Authorize does the following, in order:
//
//  1. generates a one-time state value (uuid v4)
//  2. builds the authorize URL and renders it as a QR code
//  3. binds the callback listener on the redirect port
//  4. hands URL and QR to the Presenter
//  5. waits for the redirect, bounded by AuthTimeout
//  6. verifies state and exchanges the code for tokens
//
// The listener is closed on every exit path.
//
// # Refresh
//
// ValidToken refreshes synchronously when the access token expires within the
// refresh margin (60s by default). Refreshes are serialized by a mutex so two
// callers never spend the same refresh token concurrently. An invalid_grant
// response clears the session and the cache and returns
// ErrReauthorizationRequired. Other refresh failures are transient; while the
// old token has not yet expired it is still returned.
//
// # Error Handling
//
//   - ErrAuthorizationTimeout: no callback in time, session left unset
//   - ErrAuthorizationDenied: error parameter, state mismatch or rejected code
//   - ErrReauthorizationRequired: no session, or the refresh token was revoked
//   - *callback.BindError: the callback port could not be bound
//   - *spotify.TransientError: token endpoint unreachable
package auth

// Package spotify adapts the Spotify Web API to the small surface the remote
// needs.
//
// # Overview
//
// The package wraps github.com/zmb3/spotify/v2 behind the Remote interface so
// the rest of the application never touches the third-party client or its
// types directly. Every call goes through an oauth2 transport whose token
// source is supplied by the caller, so credentials always come from the
// session owner.
//
// # Architecture
//
//   - client.go: Remote interface, Client implementation, request transport
//   - types.go: Playback, Device and Playlist values handed to callers
//   - errors.go: error taxonomy and classification of transport/API failures
//
// # Error Handling
//
// Failures are classified before they leave the package:
//
//   - *RateLimitError: HTTP 429, carries the Retry-After hint
//   - *TransientError: connection failures, timeouts and 5xx responses
//   - ErrUnauthorized: HTTP 401, the access token was rejected
//   - ErrDeviceUnavailable: the player has no active device to act on
//
// Anything else is returned wrapped with the operation name. Errors produced
// by the token source (for example a revoked refresh token) keep their chain
// so callers can match them with errors.Is.
//
// # Usage Example
//
//	client := spotify.NewClient(tokens.TokenSource(ctx), spotify.Options{})
//	pb, err := client.CurrentPlayback(ctx)
//	switch {
//	case err != nil:
//		// classify with errors.Is / errors.As
//	case pb == nil:
//		// no active device
//	}
package spotify

// Package config resolves spotigui's runtime configuration.
//
// # Sources
//
// Credentials come from the environment, with a dotenv file as fallback:
//
//   - CLIENT_ID (or SPOTIFY_CLIENT_ID), required
//   - CLIENT_SECRET (or SPOTIFY_CLIENT_SECRET), required
//   - REDIRECT_URI (or SPOTIFY_REDIRECT_URI), required
//   - CALLBACK_PORT, optional listener port override for tunnels
//
// REDIRECT_URI is passed to Spotify exactly as written. Scheme, host, path and
// trailing slash all have to match the value registered for the app, so it is
// never normalized.
//
// Tuning lives in an optional TOML file (~/.config/spotigui/config.toml):
//
//	poll_interval      = "1s"
//	debounce           = "300ms"
//	auth_timeout       = "2m"
//	token_cache        = "~/.spotigui/token.json"
//	prefs_path         = "~/.config/spotigui/prefs.toml"
//	log_file           = "~/.spotigui/spotigui.log"
//	log_level          = "info"
//	state_ws_addr      = "127.0.0.1:8890"
//	playlist_page_size = 6
//	callback_port      = 8888
//
// A missing settings file means defaults. A malformed one is an error.
//
// # Callback Address
//
// The listener port is CALLBACK_PORT, then callback_port, then the port in
// REDIRECT_URI, then the scheme default. Loopback and IP-literal hosts are
// bound as given; any other host name is assumed to be a tunnel that forwards
// to 127.0.0.1.
package config

package spotify

import "strings"

// Playback is the player state reported by the remote service.
type Playback struct {
	DeviceID      string   `json:"device_id"`
	DeviceName    string   `json:"device_name"`
	TrackID       string   `json:"track_id"`
	TrackName     string   `json:"track_name"`
	Artists       []string `json:"artists,omitempty"`
	AlbumName     string   `json:"album_name,omitempty"`
	PositionMS    int      `json:"position_ms"`
	DurationMS    int      `json:"duration_ms"`
	IsPlaying     bool     `json:"is_playing"`
	VolumePercent int      `json:"volume_percent"`
}

// ArtistLine joins the artist names for display.
func (p Playback) ArtistLine() string {
	return strings.Join(p.Artists, ", ")
}

// Device is a Spotify Connect playback target.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Active        bool   `json:"active"`
	Restricted    bool   `json:"restricted"`
	VolumePercent int    `json:"volume_percent"`
}

// Playlist is a playlist owned or followed by the user.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URI        string `json:"uri"`
	TrackCount int    `json:"track_count"`
}

// PlaylistPage is one page of the user's playlists. Next is the cursor for the
// following page, or -1 when there are no more pages.
type PlaylistPage struct {
	Items []Playlist `json:"items"`
	Total int        `json:"total"`
	Next  int        `json:"next"`
}

// HasMore reports whether another page can be requested.
func (p PlaylistPage) HasMore() bool {
	return p.Next >= 0
}

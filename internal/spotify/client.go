package spotify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// Remote is the playback API consumed by the receiver and the dispatcher.
type Remote interface {
	CurrentPlayback(ctx context.Context) (*Playback, error)
	Play(ctx context.Context) error
	PlayContext(ctx context.Context, contextURI string) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetVolume(ctx context.Context, percent int) error
	Seek(ctx context.Context, positionMS int) error
	Devices(ctx context.Context) ([]Device, error)
	TransferPlayback(ctx context.Context, deviceID string, play bool) error
	Playlists(ctx context.Context, cursor, limit int) (PlaylistPage, error)
}

// Ensure Client implements Remote at compile time.
var _ Remote = (*Client)(nil)

const (
	defaultUserAgent = "spotigui/0.1"
	requestTimeout   = 10 * time.Second
)

// Options tune the client. The zero value talks to the public API.
type Options struct {
	// BaseURL overrides the Web API root, mostly for tests.
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the Spotify Web API on behalf of the current session.
type Client struct {
	api       *spotifyapi.Client
	transport *http.Transport
}

// NewClient builds a Client whose requests are authorized by tokens.
func NewClient(tokens oauth2.TokenSource, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &statusTransport{
			base:      &oauth2.Transport{Source: tokens, Base: base},
			userAgent: userAgent,
			now:       time.Now,
		},
	}

	var apiOpts []spotifyapi.ClientOption
	if opts.BaseURL != "" {
		root := opts.BaseURL
		if !strings.HasSuffix(root, "/") {
			root += "/"
		}
		apiOpts = append(apiOpts, spotifyapi.WithBaseURL(root))
	}

	return &Client{
		api:       spotifyapi.New(httpClient, apiOpts...),
		transport: base,
	}
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	if c != nil && c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}

// CurrentPlayback returns the current player state, or nil when no device is
// active.
func (c *Client) CurrentPlayback(ctx context.Context) (*Playback, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	st, err := c.api.PlayerState(ctx)
	if err != nil {
		return nil, classify(ctx, "fetch playback", err)
	}
	if st == nil || st.Device.ID == "" {
		return nil, nil
	}
	return playbackFromState(st), nil
}

func playbackFromState(st *spotifyapi.PlayerState) *Playback {
	pb := &Playback{
		DeviceID:      string(st.Device.ID),
		DeviceName:    st.Device.Name,
		PositionMS:    int(st.Progress),
		IsPlaying:     st.Playing,
		VolumePercent: int(st.Device.Volume),
	}
	if item := st.Item; item != nil {
		pb.TrackID = string(item.ID)
		pb.TrackName = item.Name
		pb.DurationMS = int(item.Duration)
		pb.AlbumName = item.Album.Name
		for _, artist := range item.Artists {
			pb.Artists = append(pb.Artists, artist.Name)
		}
	}
	return pb
}

// Play resumes playback on the active device.
func (c *Client) Play(ctx context.Context) error {
	return classify(ctx, "play", c.api.Play(ctx))
}

// PlayContext starts an album, artist or playlist context.
func (c *Client) PlayContext(ctx context.Context, contextURI string) error {
	uri := spotifyapi.URI(contextURI)
	return classify(ctx, "play context", c.api.PlayOpt(ctx, &spotifyapi.PlayOptions{PlaybackContext: &uri}))
}

// Pause pauses playback on the active device.
func (c *Client) Pause(ctx context.Context) error {
	return classify(ctx, "pause", c.api.Pause(ctx))
}

// Next skips to the next track.
func (c *Client) Next(ctx context.Context) error {
	return classify(ctx, "next", c.api.Next(ctx))
}

// Previous skips to the previous track.
func (c *Client) Previous(ctx context.Context) error {
	return classify(ctx, "previous", c.api.Previous(ctx))
}

// SetVolume sets the active device volume.
func (c *Client) SetVolume(ctx context.Context, percent int) error {
	return classify(ctx, "set volume", c.api.Volume(ctx, clampPercent(percent)))
}

// Seek moves the playhead to an absolute position.
func (c *Client) Seek(ctx context.Context, positionMS int) error {
	if positionMS < 0 {
		positionMS = 0
	}
	return classify(ctx, "seek", c.api.Seek(ctx, positionMS))
}

// Devices lists the user's available devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	devices, err := c.api.PlayerDevices(ctx)
	if err != nil {
		return nil, classify(ctx, "list devices", err)
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, Device{
			ID:            string(d.ID),
			Name:          d.Name,
			Type:          d.Type,
			Active:        d.Active,
			Restricted:    d.Restricted,
			VolumePercent: int(d.Volume),
		})
	}
	return out, nil
}

// TransferPlayback moves playback to deviceID.
func (c *Client) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	if deviceID == "" {
		return fmt.Errorf("transfer playback: device id is empty")
	}
	return classify(ctx, "transfer playback", c.api.TransferPlayback(ctx, spotifyapi.ID(deviceID), play))
}

// Playlists returns one page of the user's playlists starting at cursor.
func (c *Client) Playlists(ctx context.Context, cursor, limit int) (PlaylistPage, error) {
	if cursor < 0 {
		cursor = 0
	}
	if limit <= 0 {
		limit = 20
	}
	page, err := c.api.CurrentUsersPlaylists(ctx, spotifyapi.Limit(limit), spotifyapi.Offset(cursor))
	if err != nil {
		return PlaylistPage{}, classify(ctx, "list playlists", err)
	}

	out := PlaylistPage{Total: int(page.Total), Next: -1}
	for _, p := range page.Playlists {
		out.Items = append(out.Items, Playlist{
			ID:         string(p.ID),
			Name:       p.Name,
			URI:        string(p.URI),
			TrackCount: int(p.Tracks.Total),
		})
	}
	if page.Next != "" {
		out.Next = cursor + len(page.Playlists)
	}
	return out, nil
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// statusTransport sets the user agent and turns status codes that carry no
// useful body into typed errors before the API client sees them.
type statusTransport struct {
	base      http.RoundTripper
	userAgent string
	now       func() time.Time
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retry := parseRetryAfter(resp.Header.Get("Retry-After"), t.now())
		drain(resp)
		return nil, &RateLimitError{RetryAfter: retry}
	case resp.StatusCode == http.StatusUnauthorized:
		drain(resp)
		return nil, ErrUnauthorized
	case resp.StatusCode >= 500:
		status := resp.Status
		drain(resp)
		return nil, &TransientError{Err: fmt.Errorf("api %s %s returned %s", req.Method, req.URL.Path, status)}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

package spotify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
	return NewClient(tokens, Options{BaseURL: server.URL})
}

const playerStateJSON = `{
	"device": {"id": "dev-1", "name": "Kitchen", "type": "Speaker", "is_active": true, "volume_percent": 40},
	"progress_ms": 65000,
	"is_playing": true,
	"item": {
		"id": "track-1",
		"name": "Song",
		"duration_ms": 180000,
		"artists": [{"name": "First"}, {"name": "Second"}],
		"album": {"name": "Album"}
	}
}`

func TestClient_CurrentPlaybackParsesPlayerState(t *testing.T) {
	t.Parallel()

	var gotAuth, gotUserAgent, gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUserAgent = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, playerStateJSON)
	})

	pb, err := client.CurrentPlayback(context.Background())
	if err != nil {
		t.Fatalf("CurrentPlayback returned error: %v", err)
	}
	if pb == nil {
		t.Fatalf("CurrentPlayback returned nil playback")
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization = %q, want %q", gotAuth, "Bearer tok")
	}
	if gotUserAgent != defaultUserAgent {
		t.Fatalf("User-Agent = %q, want %q", gotUserAgent, defaultUserAgent)
	}
	if gotPath != "/me/player" {
		t.Fatalf("path = %q, want /me/player", gotPath)
	}
	if pb.DeviceID != "dev-1" || pb.DeviceName != "Kitchen" {
		t.Fatalf("device = %q/%q, want dev-1/Kitchen", pb.DeviceID, pb.DeviceName)
	}
	if pb.TrackID != "track-1" || pb.TrackName != "Song" || pb.AlbumName != "Album" {
		t.Fatalf("unexpected track fields: %+v", pb)
	}
	if pb.PositionMS != 65000 || pb.DurationMS != 180000 {
		t.Fatalf("position/duration = %d/%d, want 65000/180000", pb.PositionMS, pb.DurationMS)
	}
	if !pb.IsPlaying {
		t.Fatalf("IsPlaying = false, want true")
	}
	if pb.VolumePercent != 40 {
		t.Fatalf("VolumePercent = %d, want 40", pb.VolumePercent)
	}
	if got := pb.ArtistLine(); got != "First, Second" {
		t.Fatalf("ArtistLine = %q, want %q", got, "First, Second")
	}
}

func TestClient_CurrentPlaybackNoContentMeansNoDevice(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	pb, err := client.CurrentPlayback(context.Background())
	if err != nil {
		t.Fatalf("CurrentPlayback returned error: %v", err)
	}
	if pb != nil {
		t.Fatalf("CurrentPlayback = %+v, want nil", pb)
	}
}

func TestClient_ClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		check func(t *testing.T, err error)
	}{
		{
			name: "rate limited",
			write: func(w http.ResponseWriter) {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			check: func(t *testing.T, err error) {
				var rl *RateLimitError
				if !errors.As(err, &rl) {
					t.Fatalf("err = %v, want *RateLimitError", err)
				}
				if rl.RetryAfter != 7*time.Second {
					t.Fatalf("RetryAfter = %s, want 7s", rl.RetryAfter)
				}
				if !IsRetryable(err) {
					t.Fatalf("IsRetryable = false, want true")
				}
			},
		},
		{
			name: "server error",
			write: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(t *testing.T, err error) {
				var te *TransientError
				if !errors.As(err, &te) {
					t.Fatalf("err = %v, want *TransientError", err)
				}
				if te.Op != "next" {
					t.Fatalf("Op = %q, want next", te.Op)
				}
			},
		},
		{
			name: "unauthorized",
			write: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUnauthorized) {
					t.Fatalf("err = %v, want ErrUnauthorized", err)
				}
				if IsRetryable(err) {
					t.Fatalf("IsRetryable = true, want false")
				}
			},
		},
		{
			name: "no active device",
			write: func(w http.ResponseWriter) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"error":{"status":404,"message":"Player command failed: No active device found","reason":"NO_ACTIVE_DEVICE"}}`)
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrDeviceUnavailable) {
					t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				tt.write(w)
			})
			err := client.Next(context.Background())
			if err == nil {
				t.Fatalf("Next returned nil error")
			}
			tt.check(t, err)
		})
	}
}

func TestClient_TransportCommands(t *testing.T) {
	t.Parallel()

	type call struct {
		method string
		path   string
		query  string
	}
	var (
		mu    sync.Mutex
		calls []call
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path, r.URL.RawQuery})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	if err := client.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := client.SetVolume(ctx, 55); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if err := client.Seek(ctx, 12000); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := client.Previous(ctx); err != nil {
		t.Fatalf("Previous: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(calls))
	}
	if calls[0].method != http.MethodPut || calls[0].path != "/me/player/pause" {
		t.Fatalf("pause call = %+v", calls[0])
	}
	if calls[1].path != "/me/player/volume" || !strings.Contains(calls[1].query, "volume_percent=55") {
		t.Fatalf("volume call = %+v", calls[1])
	}
	if calls[2].path != "/me/player/seek" || !strings.Contains(calls[2].query, "position_ms=12000") {
		t.Fatalf("seek call = %+v", calls[2])
	}
	if calls[3].method != http.MethodPost || calls[3].path != "/me/player/previous" {
		t.Fatalf("previous call = %+v", calls[3])
	}
}

func TestClient_DevicesMarksActive(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/player/devices" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"devices":[
			{"id":"a","name":"Phone","type":"Smartphone","is_active":false,"volume_percent":20},
			{"id":"b","name":"Kitchen","type":"Speaker","is_active":true,"volume_percent":60}
		]}`)
	})

	devices, err := client.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices returned error: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(devices))
	}
	if devices[0].Active || !devices[1].Active {
		t.Fatalf("active flags = %v/%v, want false/true", devices[0].Active, devices[1].Active)
	}
	if devices[1].VolumePercent != 60 {
		t.Fatalf("VolumePercent = %d, want 60", devices[1].VolumePercent)
	}
}

func TestClient_PlaylistsPaging(t *testing.T) {
	t.Parallel()

	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"href": "x", "limit": 2, "offset": 0, "total": 3,
			"next": "https://api.spotify.com/v1/me/playlists?offset=2&limit=2",
			"items": [
				{"id":"p1","name":"Morning","uri":"spotify:playlist:p1","tracks":{"total":12}},
				{"id":"p2","name":"Evening","uri":"spotify:playlist:p2","tracks":{"total":3}}
			]
		}`)
	})

	page, err := client.Playlists(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("Playlists returned error: %v", err)
	}
	if !strings.Contains(gotQuery, "limit=2") {
		t.Fatalf("query = %q, want limit=2", gotQuery)
	}
	if len(page.Items) != 2 || page.Items[0].URI != "spotify:playlist:p1" {
		t.Fatalf("items = %+v", page.Items)
	}
	if page.Items[0].TrackCount != 12 {
		t.Fatalf("TrackCount = %d, want 12", page.Items[0].TrackCount)
	}
	if page.Total != 3 || page.Next != 2 || !page.HasMore() {
		t.Fatalf("paging = total %d next %d", page.Total, page.Next)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", defaultRetryAfter},
		{"3", 3 * time.Second},
		{"-1", defaultRetryAfter},
		{"soon", defaultRetryAfter},
		{now.Add(5 * time.Second).Format(http.TimeFormat), 5 * time.Second},
		{now.Add(-5 * time.Second).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Fatalf("parseRetryAfter(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

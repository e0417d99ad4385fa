package statews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/spotigui/spotigui/internal/logging"
	"github.com/spotigui/spotigui/internal/state"
)

// Source supplies snapshots. *state.Store satisfies it.
type Source interface {
	Snapshot() state.Snapshot
	Subscribe() (<-chan state.Snapshot, func())
}

// Options configure a Server.
type Options struct {
	// Addr is the listen address, for example 127.0.0.1:8765.
	Addr         string
	SendBuf      int
	BroadcastBuf int
	Logger       logrus.FieldLogger
}

// Server serves /ws and /healthz.
type Server struct {
	source Source
	hub    *Hub
	addr   string
	log    logrus.FieldLogger
}

type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	// Loopback feed for local dashboards.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewServer builds a Server reading from source.
func NewServer(source Source, opts Options) *Server {
	log := logging.Component(opts.Logger, "statews")
	return &Server{
		source: source,
		hub:    newHub(log, opts.SendBuf, opts.BroadcastBuf),
		addr:   opts.Addr,
		log:    log,
	}
}

// Hub exposes the client hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe binds Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub, the snapshot feed and the HTTP server on ln until ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.WithField("addr", ln.Addr().String()).Info("state feed listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.Feed(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("state feed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Feed forwards every published snapshot to the hub until ctx is cancelled.
func (s *Server) Feed(ctx context.Context) {
	snaps, cancel := s.source.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			msg, err := encode(snap)
			if err != nil {
				s.log.WithError(err).Warn("encode snapshot failed")
				continue
			}
			s.hub.publish(msg)
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("ws upgrade failed")
		return
	}
	c := newClient(s.hub, conn, r.RemoteAddr)

	if snap := s.source.Snapshot(); !snap.IsZero() {
		if msg, err := encode(snap); err == nil {
			c.send <- msg
		}
	}
	if !s.hub.join(c) {
		c.close()
		return
	}

	// Pumps outlive the request; the hub owns the connection.
	go c.writePump()
	go c.readPump()
}

func encode(snap state.Snapshot) ([]byte, error) {
	ts := snap.ObservedAt.UTC()
	return json.Marshal(envelope{Type: "playback", Ts: &ts, Data: snap})
}

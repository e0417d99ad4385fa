// Package statews streams playback snapshots to websocket clients.
//
// Every client receives the latest snapshot on connect and one message per
// published snapshot afterwards. Frames are JSON text messages with the
// envelope {type, ts, data}. A client whose send queue fills up is
// disconnected so one slow reader never holds back the others.
package statews

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	defaultSendBuf      = 16
	defaultBroadcastBuf = 64
)

// Hub tracks connected clients and fans frames out to them.
type Hub struct {
	log        logrus.FieldLogger
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	sendBuf    int

	mu      sync.Mutex
	clients map[*client]struct{}
}

func newHub(log logrus.FieldLogger, sendBuf, broadcastBuf int) *Hub {
	if sendBuf <= 0 {
		sendBuf = defaultSendBuf
	}
	if broadcastBuf <= 0 {
		broadcastBuf = defaultBroadcastBuf
	}
	return &Hub{
		log:        log,
		broadcast:  make(chan []byte, broadcastBuf),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		done:       make(chan struct{}),
		sendBuf:    sendBuf,
		clients:    make(map[*client]struct{}),
	}
}

// Run processes hub events until ctx is cancelled, then disconnects every
// client. Only Run sends on or closes a registered client's queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.WithField("remote_addr", c.remoteAddr).WithField("clients", n).Debug("ws client connected")

		case c := <-h.unregister:
			h.remove(c, "closed")

		case msg := <-h.broadcast:
			var slow []*client
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()
			for _, c := range slow {
				h.remove(c, "slow client")
			}
		}
	}
}

// join hands c to the hub. It reports false when the hub has stopped.
func (h *Hub) join(c *client) bool {
	if h.stopped() {
		return false
	}
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave hands c back to the hub for removal. Once the hub has stopped nothing
// else touches c, so it is closed here.
func (h *Hub) leave(c *client) {
	if h.stopped() {
		c.close()
		return
	}
	select {
	case h.unregister <- c:
	case <-h.done:
		c.close()
	}
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// publish queues a frame for every client. It drops the frame when the hub
// queue is full.
func (h *Hub) publish(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.WithField("bytes", len(msg)).Warn("ws broadcast queue full, frame dropped")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	h.log.WithField("remote_addr", c.remoteAddr).WithField("reason", reason).WithField("clients", n).Debug("ws client disconnected")
}

type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	log        logrus.FieldLogger

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, remoteAddr string) *client {
	return &client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		remoteAddr: remoteAddr,
		log:        h.log.WithField("remote_addr", remoteAddr),
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.send)
	})
}

// writePump drains the send queue into the connection and keeps it alive
// with pings. It exits when send is closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("ping", err)
				return
			}
		}
	}
}

// readPump discards inbound frames so control frames get processed and
// disconnects are noticed.
func (c *client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			c.hub.leave(c)
			return
		}
	}
}

func (c *client) logExit(op string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.log.WithField("code", ce.Code).Debug("ws client closed")
		return
	}
	c.log.WithError(err).WithField("op", op).Debug("ws pump exiting")
}

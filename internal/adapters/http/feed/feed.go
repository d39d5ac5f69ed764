// Package feed pushes live leaderboard updates to websocket clients.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Message types.
const (
	TypeLeaderboard = "leaderboard"
	TypeTransition  = "transition"
)

const (
	defaultSendBuffer   = 16
	defaultWriteTimeout = 5 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = pongWait * 9 / 10
	maxReadSize         = 512
)

// Envelope is the frame sent to clients.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TransitionEvent is one classified event in a transition frame.
type TransitionEvent struct {
	Kind          string `json:"kind"`
	Primary       bool   `json:"primary"`
	PlayerID      string `json:"player_id"`
	PlayerName    string `json:"player_name"`
	NewPlayerName string `json:"new_player_name,omitempty"`
	Rank          int    `json:"rank"`
	NewRank       int    `json:"new_rank,omitempty"`
}

// Transition summarizes one roster transition for the feed.
type Transition struct {
	ID      string            `json:"id"`
	Events  []TransitionEvent `json:"events"`
	Sent    int               `json:"sent"`
	Failed  int               `json:"failed"`
	Skipped int               `json:"skipped"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans frames out to connected clients. Slow clients whose buffer is
// full are disconnected.
type Hub struct {
	upgrader     websocket.Upgrader
	sendBuffer   int
	writeTimeout time.Duration
	log          logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte // latest leaderboard frame, replayed on connect
	closed  bool
}

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithSendBuffer sets the per-client frame buffer.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithAllowedOrigins lets browsers from the listed origins connect. "*" allows
// any origin. Without this option only same-origin browser requests are
// upgraded; requests without an Origin header are always accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			if o == "*" {
				h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
				return
			}
			allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[strings.ToLower(origin)]
			return ok
		}
	}
}

// NewHub creates a hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 2048,
		},
		sendBuffer:   defaultSendBuffer,
		writeTimeout: defaultWriteTimeout,
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Get().Named("feed")
	}
	return h
}

func encode(typ string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}

// PublishLeaderboard sends the ranked entries to every client and keeps them
// for clients that connect later.
func (h *Hub) PublishLeaderboard(entries []types.Entry) {
	if entries == nil {
		entries = []types.Entry{}
	}
	frame, err := encode(TypeLeaderboard, entries)
	if err != nil {
		h.log.Error(context.Background(), "encode leaderboard frame", logger.Error(err))
		return
	}
	h.mu.Lock()
	h.last = frame
	h.mu.Unlock()
	h.broadcast(frame)
}

// PublishTransition sends a transition summary to every client.
func (h *Hub) PublishTransition(t Transition) {
	frame, err := encode(TypeTransition, t)
	if err != nil {
		h.log.Error(context.Background(), "encode transition frame", logger.Error(err))
		return
	}
	h.broadcast(frame)
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.dropLocked(c)
		}
	}
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
	metrics.UpdateFeedClients(len(h.clients))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams frames until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	metrics.UpdateFeedClients(len(h.clients))
	h.mu.Unlock()

	go h.writer(c)
	h.reader(c)
}

// reader discards client frames; it exists to process pongs and notice
// disconnects.
func (h *Hub) reader(c *client) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(c)
		h.mu.Unlock()
	}()
	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writer(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

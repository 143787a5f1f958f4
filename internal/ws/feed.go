// Package ws streams merged board state to attached UI clients. Rendering
// itself lives in the browser; this is only the delivery pipe.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/archboard/internal/types"
)

const (
	writeTimeout = 5 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 16
)

// Event is one frame on the UI feed: either a full board snapshot or a sync
// status transition.
type Event struct {
	Type        string          `json:"type"`
	Document    *types.Document `json:"document,omitempty"`
	Connections []types.Edge    `json:"connections,omitempty"`
	Status      string          `json:"status,omitempty"`
	Presence    any             `json:"presence,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// Feed fans board events out to every attached WebSocket client.
type Feed struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

// NewFeed creates an empty feed.
func NewFeed(logger zerolog.Logger) *Feed {
	return &Feed{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The board UI is same-origin behind the session; cross-origin
			// checks happen in the auth layer upstream.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// BroadcastBoard pushes a full board snapshot to every client. The latest
// snapshot is retained and replayed to clients that connect later.
func (f *Feed) BroadcastBoard(doc types.Document, conns []types.Edge) {
	data, err := json.Marshal(Event{Type: "board", Document: &doc, Connections: conns})
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to encode board event")
		return
	}

	f.mu.Lock()
	f.last = data
	targets := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		targets = append(targets, c)
	}
	f.mu.Unlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// BroadcastStatus pushes a sync status transition to every client.
func (f *Feed) BroadcastStatus(status string) {
	data, err := json.Marshal(Event{Type: "status", Status: status})
	if err != nil {
		return
	}

	f.mu.Lock()
	targets := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		targets = append(targets, c)
	}
	f.mu.Unlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// BroadcastPresence pushes the current viewer roster to every client.
func (f *Feed) BroadcastPresence(roster any) {
	data, err := json.Marshal(Event{Type: "presence", Presence: roster})
	if err != nil {
		return
	}

	f.mu.Lock()
	targets := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		targets = append(targets, c)
	}
	f.mu.Unlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// ServeHTTP upgrades the request and attaches the client to the feed.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	f.mu.Lock()
	f.clients[c] = struct{}{}
	count := len(f.clients)
	last := f.last
	f.mu.Unlock()
	feedConnections.Set(float64(count))

	if last != nil {
		c.enqueue(last)
	}

	go f.writePump(c)
	go f.readPump(c)
}

func (f *Feed) detach(c *client) {
	f.mu.Lock()
	if _, ok := f.clients[c]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.clients, c)
	count := len(f.clients)
	f.mu.Unlock()

	feedConnections.Set(float64(count))
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	c.conn.Close()
}

func (f *Feed) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeTimeout))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				f.detach(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				f.detach(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; the feed is one-way. It exists to
// service pongs and to notice when the peer goes away.
func (f *Feed) readPump(c *client) {
	defer f.detach(c)

	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		feedDropped.Inc()
	}
}

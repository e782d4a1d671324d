// Package notify implements ports.NotificationSink over a websocket hub:
// every connected client receives every topic/payload pair broadcast
// through Notify. Grounded on a client-registry pattern
// (Server.clients/AddClient/RemoveClient/broadcastLogs), trimmed down to a
// single {topic, payload} envelope the repair loop and future callers need.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Message is the wire envelope every client receives.
type Message struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub is a ports.NotificationSink backed by a set of live websocket
// connections. Zero value is not usable; construct with NewHub.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *slog.Logger
}

// NewHub builds an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log.With("component", "notify"),
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// resulting client until the connection drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Message, 256)}
	h.add(c)
	defer func() {
		h.remove(c)
		conn.Close()
	}()

	go h.readLoop(c)
	h.writeLoop(c)
}

func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.conn.Close()
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Notify implements ports.NotificationSink. A client whose send buffer is
// full drops the message rather than blocking the caller.
func (h *Hub) Notify(ctx context.Context, topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("notify payload marshal failed", "topic", topic, "error", err)
		return
	}
	msg := Message{Topic: topic, Payload: raw}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("dropping notification for slow client", "topic", topic)
		}
	}
}

// Package relay fans messages out to WebSocket clients such as browser dashboards.
// Whatever one client sends is forwarded as text to every other client, and presence
// events are broadcast to all of them as JSON.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LdDl/presence-go/internal/log"
	"github.com/LdDl/presence-go/presence"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	// DefaultSendBuffer is the number of outgoing messages queued per client
	DefaultSendBuffer = 32

	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// MessageTypePresence marks presence events on the wire
const MessageTypePresence = "presence"

// EventMessage is the wire form of a presence event
type EventMessage struct {
	Type     string    `json:"type"`
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Label    string    `json:"label,omitempty"`
	Labels   []string  `json:"labels,omitempty"`
	Severity string    `json:"severity"`
	Unknown  bool      `json:"unknown,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// NewEventMessage converts an event to its wire form
func NewEventMessage(ev presence.Event) EventMessage {
	return EventMessage{
		Type:     MessageTypePresence,
		ID:       ev.ID.String(),
		Kind:     ev.Kind.String(),
		Label:    ev.Label,
		Labels:   ev.Labels,
		Severity: string(ev.Severity),
		Unknown:  ev.Unknown,
		Message:  ev.Message(),
		At:       ev.At,
	}
}

// Stats counts hub traffic
type Stats struct {
	Clients         int
	MessagesRelayed uint64
	EventsBroadcast uint64
	Dropped         uint64
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Option customizes a Hub
type Option func(*Hub)

// WithLogger sets the hub logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithSendBuffer sets the per-client outgoing queue length
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithCheckOrigin overrides the same-origin check of the upgrade request
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = check
	}
}

// Hub manages WebSocket clients. It is an http.Handler and a session sink.
type Hub struct {
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	sendBuffer int

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	closed  bool

	messagesRelayed atomic.Uint64
	eventsBroadcast atomic.Uint64
	dropped         atomic.Uint64
}

// NewHub creates a hub without clients
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
		},
		sendBuffer: DefaultSendBuffer,
		clients:    make(map[uuid.UUID]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = log.With("component", "relay")
	}
	return h
}

// ServeHTTP upgrades the request and serves the client until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	go h.writeLoop(c)
	h.readLoop(c)
}

// Publish broadcasts the event to every client. It implements session.Sink
func (h *Hub) Publish(ctx context.Context, ev presence.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewEventMessage(ev))
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}
	h.broadcast(data, uuid.Nil)
	h.eventsBroadcast.Add(1)
	return nil
}

// Clients returns number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns traffic counters
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:         h.Clients(),
		MessagesRelayed: h.messagesRelayed.Load(),
		EventsBroadcast: h.eventsBroadcast.Load(),
		Dropped:         h.dropped.Load(),
	}
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.logger.Info("client connected", "client", c.id.String(), "remote", c.conn.RemoteAddr().String(), "total", len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.logger.Info("client disconnected", "client", c.id.String(), "total", len(h.clients))
}

// broadcast queues data for every client except the sender. Slow clients lose the message
func (h *Hub) broadcast(data []byte, sender uuid.UUID) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if id == sender {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
			h.logger.Warn("client queue full, message dropped", "client", id.String())
		}
	}
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("client read failed", "client", c.id.String(), "err", err)
			}
			return
		}
		// Binary frames are forwarded as text, browsers expect JSON strings
		h.messagesRelayed.Add(1)
		h.broadcast(data, c.id)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("client write failed", "client", c.id.String(), "err", err)
			return
		}
	}
	deadline := time.Now().Add(writeWait)
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

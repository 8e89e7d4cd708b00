package notifications

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/mnzioki/dukabook/pkg/observability"
)

// Event is the message shape broadcast to connected WebSocket clients.
type Event struct {
	Type    string  `json:"type"`
	Entity  string  `json:"entity,omitempty"`
	ID      any     `json:"id,omitempty"`
	Action  string  `json:"action,omitempty"`
	Feature string  `json:"feature,omitempty"`
	Percent float64 `json:"percent,omitempty"`
}

// client wraps a connection with a mutex so pings and broadcasts never
// interleave writes.
type client struct {
	conn   *ws.Conn
	userID string
	mu     sync.Mutex
}

// Hub tracks connected clients per user and broadcasts events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *observability.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *observability.Logger) *Hub {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.WithField("component", "ws_hub"),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.WithField("clients", total).Debug("WebSocket client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Close disconnects every client. Used during server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every connection owned by userID.
func (h *Hub) Broadcast(userID string, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.userID == userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		writeErr := c.conn.WriteMessage(ws.TextMessage, data)
		c.mu.Unlock()

		if writeErr != nil {
			h.unregister(c)
		}
	}
}

// BroadcastChange announces an entity create/update/delete to the
// owning user's clients.
func (h *Hub) BroadcastChange(userID, entity, action string, id any) {
	h.Broadcast(userID, Event{
		Type:   TypeEntityEvent,
		Entity: entity,
		Action: action,
		ID:     id,
	})
}

// BroadcastLimitWarning announces a usage threshold crossing.
func (h *Hub) BroadcastLimitWarning(userID, feature string, percent float64) {
	h.Broadcast(userID, Event{
		Type:    TypeLimitWarning,
		Feature: feature,
		Percent: percent,
	})
}

// Upgrader accepts cross-origin upgrades; CORS is enforced upstream by
// the HTTP middleware.
var Upgrader = ws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the request for an authenticated user and
// keeps the connection alive with pings until the client drops.
func (h *Hub) HandleWebSocket(userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, userID: userID}
	h.register(c)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			c.mu.Lock()
			err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
	h.logger.Debug("WebSocket client disconnected")
}

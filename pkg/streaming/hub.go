// Package streaming pushes payout preview changes to WebSocket clients.
package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/phenomenon0/propslip/pkg/preview"
)

// EventType is the type of a streamed event.
type EventType string

const (
	EventTypePreview   EventType = "preview"
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event is a frame sent to clients.
type Event struct {
	Type      EventType `json:"type"`
	EventID   string    `json:"eventId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// PreviewData is the payload of a preview event.
type PreviewData struct {
	Snapshot preview.Snapshot `json:"snapshot"`
	Changed  preview.FieldSet `json:"changed"`
}

// Config configures a Hub.
type Config struct {
	HeartbeatInterval time.Duration // Default: 30s
	SendBuffer        int           // Default: 256

	// AllowedOrigins lists the Origin headers accepted on upgrade. Empty or
	// "*" accepts any origin. Requests without an Origin header are accepted.
	AllowedOrigins []string

	// OnClientCount is called with the client count after every change.
	OnClientCount func(n int)
}

// Hub manages client connections and fans events out to them.
type Hub struct {
	cfg Config

	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	upgrader websocket.Upgrader
}

// Client is one downstream connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// Event IDs the client follows; empty means all.
	events map[string]bool
	subMu  sync.RWMutex
}

// NewHub creates a hub. Call Run to start it.
func NewHub(cfg Config) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Hub{
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			allowed = nil
			break
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		log.Warn().Str("origin", origin).Msg("stream: origin rejected")
		return false
	}
}

// Run runs the hub's event loop until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.clientCountChanged()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Info().Str("client", client.id).Int("clients", h.ClientCount()).Msg("stream: client connected")
			h.clientCountChanged()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Info().Str("client", client.id).Int("clients", h.ClientCount()).Msg("stream: client disconnected")
			h.clientCountChanged()

		case event := <-h.broadcast:
			h.broadcastEvent(event)

		case <-heartbeat.C:
			h.broadcastEvent(Event{
				Type:      EventTypeHeartbeat,
				Timestamp: time.Now(),
				Data:      map[string]any{"clients": h.ClientCount()},
			})
		}
	}
}

func (h *Hub) clientCountChanged() {
	if h.cfg.OnClientCount != nil {
		h.cfg.OnClientCount(h.ClientCount())
	}
}

func (h *Hub) broadcastEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("stream: failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if event.EventID != "" && !client.follows(event.EventID) {
			continue
		}

		select {
		case client.send <- data:
		default:
			// Slow client: drop it rather than block the hub.
			close(client.send)
			delete(h.clients, client)
			log.Warn().Str("client", client.id).Msg("stream: send buffer full, dropping client")
		}
	}
}

// Broadcast queues an event for all interested clients.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		log.Warn().Str("type", string(event.Type)).Msg("stream: broadcast channel full, dropping event")
	}
}

// BroadcastPreview queues a preview event for eventID.
func (h *Hub) BroadcastPreview(eventID string, snap preview.Snapshot, changed preview.FieldSet) {
	h.Broadcast(Event{
		Type:    EventTypePreview,
		EventID: eventID,
		Data:    PreviewData{Snapshot: snap, Changed: changed},
	})
}

// Observer adapts the hub to a preview store observer.
func (h *Hub) Observer() preview.Observer {
	return h.BroadcastPreview
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client. Clients may pass
// ?eventId=a&eventId=b to follow specific events from the start.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("stream: upgrade failed")
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		events: make(map[string]bool),
	}
	for _, id := range r.URL.Query()["eventId"] {
		client.events[id] = true
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ID returns the client's connection ID.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) follows(eventID string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.events) == 0 || c.events[eventID]
}

// readPump handles subscribe/unsubscribe frames until the connection closes.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("client", c.id).Msg("stream: read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type     string   `json:"type"`
		EventIDs []string `json:"eventIds"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	switch msg.Type {
	case "subscribe":
		for _, id := range msg.EventIDs {
			c.events[id] = true
		}
	case "unsubscribe":
		for _, id := range msg.EventIDs {
			delete(c.events, id)
		}
	}
}

// writePump writes queued frames and pings until send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"cinegen-server/modules/common/logger"
	"cinegen-server/modules/workflow"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Message - server to browser envelope
type Message struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	State     *workflow.View `json:"state,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// inbound - browser to server
type inbound struct {
	Type string `json:"type"`
}

// Lookup returns the current state of a session.
type Lookup func(ctx context.Context, sessionID string) (workflow.State, error)

// Metrics - connection counters for /metrics
type Metrics struct {
	TotalConnections  int `json:"totalConnections"`
	ActiveConnections int `json:"activeConnections"`
	ActiveRooms       int `json:"activeRooms"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	room   *room
	primed bool // a state has been queued; guarded by Hub.mu
}

type room struct {
	id      string
	clients map[*client]struct{}
}

// Hub pushes committed wizard states to every browser tab watching a session.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	total    int
	upgrader websocket.Upgrader
	lookup   Lookup
	log      *logrus.Entry
}

// NewHub - allowedOrigin "*" accepts any origin
func NewHub(lookup Lookup, allowedOrigin string) *Hub {
	return &Hub{
		rooms:  make(map[string]*room),
		lookup: lookup,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		log: logger.WithModule("Realtime"),
	}
}

func stateMessage(sessionID string, st workflow.State) ([]byte, error) {
	view := st.View()
	return json.Marshal(Message{Type: "state", SessionID: sessionID, State: &view})
}

// Publish implements session.Notifier. Slow clients are dropped.
func (h *Hub) Publish(sessionID string, st workflow.State) {
	data, err := stateMessage(sessionID, st)
	if err != nil {
		h.log.Errorf("❌ [Realtime] Failed to encode state for %s: %v", sessionID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	for c := range r.clients {
		select {
		case c.send <- data:
			c.primed = true
		default:
			h.removeLocked(c)
		}
	}
}

// HandleWebSocket - GET /ws?session=<id>; the current state is sent right after the upgrade
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session parameter", http.StatusBadRequest)
		return
	}
	if _, err := h.lookup(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("⚠️  [Realtime] WebSocket upgrade failed: %v", err)
		return
	}

	// Join the room before reading the snapshot so no commit falls in between.
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(sessionID, c)
	st, err := h.lookup(r.Context(), sessionID)
	if err != nil {
		h.remove(c)
		conn.Close()
		return
	}
	h.prime(c, st)

	go c.writePump()
	go h.readPump(c)
}

// prime queues the initial snapshot unless a published commit got there first.
// Any commit newer than st is published after this, so the last message is current.
func (h *Hub) prime(c *client, st workflow.State) {
	data, err := stateMessage(c.room.id, st)
	if err != nil {
		h.log.Errorf("❌ [Realtime] Failed to encode state for %s: %v", c.room.id, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.room.clients[c]; !ok || c.primed {
		return
	}
	c.send <- data
	c.primed = true
}

func (h *Hub) add(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[sessionID]
	if !ok {
		r = &room{id: sessionID, clients: make(map[*client]struct{})}
		h.rooms[sessionID] = r
	}
	c.room = r
	r.clients[c] = struct{}{}
	h.total++
	h.log.Infof("👤 [Realtime] Client joined session %s (clients: %d)", sessionID, len(r.clients))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked drops the client and its room when empty. Must be called with h.mu held.
func (h *Hub) removeLocked(c *client) {
	r := c.room
	if r == nil {
		return
	}
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	close(c.send)
	if len(r.clients) == 0 {
		delete(h.rooms, r.id)
		h.log.Infof("🗑️  [Realtime] Session %s has no watchers left", r.id)
	}
}

// CloseSession disconnects every watcher of a deleted session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	for c := range r.clients {
		h.removeLocked(c)
	}
}

// Metrics - connection counters snapshot
func (h *Hub) Metrics() Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m := Metrics{TotalConnections: h.total, ActiveRooms: len(h.rooms)}
	for _, r := range h.rooms {
		m.ActiveConnections += len(r.clients)
	}
	return m
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warnf("⚠️  [Realtime] WebSocket error: %v", err)
			}
			return
		}

		switch msg.Type {
		case "request_state":
			st, err := h.lookup(context.Background(), c.room.id)
			if err != nil {
				return
			}
			data, err := stateMessage(c.room.id, st)
			if err != nil {
				continue
			}
			h.mu.RLock()
			if _, ok := c.room.clients[c]; ok {
				select {
				case c.send <- data:
				default:
				}
			}
			h.mu.RUnlock()
		default:
			h.log.Debugf("[Realtime] Ignoring message type %q", msg.Type)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

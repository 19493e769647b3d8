// Package ws pushes session snapshots to watching clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"

	"github.com/christopherjohns/blanc/internal/session"
)

// Client is one websocket watching a single session.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	id        string
	sessionID string
}

// Envelope is the JSON structure sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const TypeSession = "session"

// Hub groups clients by session ID and fans snapshots out to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]struct{}
	conns    *ConnManager
	log      *slog.Logger
	onCount  func(delta int)
}

// NewHub creates a Hub. onCount, if set, is called with +1/-1 as watchers
// connect and disconnect.
func NewHub(log *slog.Logger, onCount func(delta int), opts ...ConnManagerOption) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]map[*Client]struct{}),
		conns:    NewConnManager(log, opts...),
		log:      log,
		onCount:  onCount,
	}
}

// ConnMgr returns the connection manager for this hub.
func (h *Hub) ConnMgr() *ConnManager {
	return h.conns
}

// addClient registers a client under its session and starts its write
// pump. The returned context is cancelled when the client is removed.
func (h *Hub) addClient(c *Client) context.Context {
	ctx := h.conns.Add(c)
	if ctx.Err() != nil {
		return ctx
	}

	h.mu.Lock()
	if h.sessions[c.sessionID] == nil {
		h.sessions[c.sessionID] = make(map[*Client]struct{})
	}
	h.sessions[c.sessionID][c] = struct{}{}
	h.mu.Unlock()

	if h.onCount != nil {
		h.onCount(1)
	}
	return ctx
}

// removeClient unregisters a client and stops its write pump.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.sessions[c.sessionID]
	_, member := clients[c]
	if ok && member {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.sessions, c.sessionID)
		}
	}
	h.mu.Unlock()

	h.conns.Remove(c)

	if member && h.onCount != nil {
		h.onCount(-1)
	}
}

// encode wraps a session snapshot in an envelope.
func encode(sess *session.Session) ([]byte, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: TypeSession, Payload: data})
}

// Broadcast sends sess to every client watching it.
func (h *Hub) Broadcast(sess *session.Session) {
	envData, err := encode(sess)
	if err != nil {
		h.log.Error("ws: failed to marshal session", "session_id", sess.ID, "error", err)
		return
	}

	h.mu.RLock()
	clients := h.sessions[sess.ID]
	// Copy the set so we can release the lock before sending.
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.conns.Send(c, envData)
	}
}

// ClientCount returns the number of clients watching a session.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Shutdown closes every watcher connection. Cleared clients are counted
// down here since their handlers no longer find them registered.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	cleared := 0
	for _, clients := range h.sessions {
		cleared += len(clients)
	}
	h.sessions = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	if cleared > 0 && h.onCount != nil {
		h.onCount(-cleared)
	}
	h.conns.Shutdown()
}

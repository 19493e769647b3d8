package ws

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of snapshots that can be queued per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second
)

// ConnStats holds point-in-time connection statistics.
type ConnStats struct {
	Active          int
	MaxConns        int
	Rejected        int64
	DroppedMessages int64
}

// ConnManager owns the write side of every watcher connection: a buffered
// send channel and write pump per client, a connection cap, and shutdown.
type ConnManager struct {
	mu       sync.Mutex
	clients  map[*Client]context.CancelFunc
	closed   bool
	maxConns int
	log      *slog.Logger

	rejected        atomic.Int64
	droppedMessages atomic.Int64
}

// ConnManagerOption configures a ConnManager.
type ConnManagerOption func(*ConnManager)

// WithMaxConns caps concurrent watchers. Zero means unlimited.
func WithMaxConns(n int) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.maxConns = n
	}
}

// NewConnManager creates a connection manager.
func NewConnManager(log *slog.Logger, opts ...ConnManagerOption) *ConnManager {
	cm := &ConnManager{
		clients: make(map[*Client]context.CancelFunc),
		log:     log,
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// Add registers a client and starts its write pump. It returns an already
// cancelled context if the manager is closed or at capacity.
func (cm *ConnManager) Add(c *Client) context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return cancelledContext()
	}
	if cm.maxConns > 0 && len(cm.clients) >= cm.maxConns {
		cm.rejected.Add(1)
		c.conn.Close(websocket.StatusTryAgainLater, "server at capacity")
		return cancelledContext()
	}

	c.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	cm.clients[c] = cancel
	go cm.writePump(ctx, c)
	return ctx
}

// Remove stops a client's write pump.
func (cm *ConnManager) Remove(c *Client) {
	cm.mu.Lock()
	cancel, ok := cm.clients[c]
	if ok {
		delete(cm.clients, c)
	}
	cm.mu.Unlock()

	if ok {
		cancel()
	}
}

// Send queues data for the client. A full buffer drops the snapshot; the
// next one supersedes it anyway.
func (cm *ConnManager) Send(c *Client, data []byte) bool {
	cm.mu.Lock()
	_, ok := cm.clients[c]
	cm.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		cm.droppedMessages.Add(1)
		cm.log.Warn("ws: send buffer full, dropping snapshot", "client_id", c.id, "session_id", c.sessionID)
		return false
	}
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// Stats returns point-in-time connection statistics.
func (cm *ConnManager) Stats() ConnStats {
	cm.mu.Lock()
	active := len(cm.clients)
	cm.mu.Unlock()
	return ConnStats{
		Active:          active,
		MaxConns:        cm.maxConns,
		Rejected:        cm.rejected.Load(),
		DroppedMessages: cm.droppedMessages.Load(),
	}
}

// Shutdown cancels every write pump and closes each connection with
// StatusGoingAway. Later Adds are refused.
func (cm *ConnManager) Shutdown() {
	cm.mu.Lock()
	cm.closed = true
	clients := cm.clients
	cm.clients = make(map[*Client]context.CancelFunc)
	cm.mu.Unlock()

	for c, cancel := range clients {
		cancel()
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// writePump drains the client's send channel until ctx is cancelled.
func (cm *ConnManager) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				cm.log.Debug("ws: write failed", "client_id", c.id, "error", err)
				return
			}
		}
	}
}

package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/christopherjohns/blanc/internal/session"
)

// Handler upgrades GET /api/sessions/{sessionId}/ws and streams snapshots
// of that session until the client disconnects.
type Handler struct {
	hub   *Hub
	store session.Store
	log   *slog.Logger
}

// NewHandler creates a new WebSocket Handler.
func NewHandler(hub *Hub, store session.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{hub: hub, store: store, log: log}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ServeHTTP rejects unknown sessions before upgrading, then registers the
// client and sends the current snapshot.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")

	if _, err := h.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.log.Error("ws: load session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}

	// Watchers outlive the server's read and write timeouts.
	rc := http.NewResponseController(w)
	rc.SetReadDeadline(time.Time{})
	rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Watchers come from the front-end origin and scanning devices.
	})
	if err != nil {
		h.log.Debug("ws: accept error", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &Client{
		conn:      conn,
		id:        uuid.NewString(),
		sessionID: id,
	}
	connCtx := h.hub.addClient(client)
	if connCtx.Err() != nil {
		return
	}
	defer h.hub.removeClient(client)

	// Fetch again after registering so no add between the first read and
	// registration is missed.
	if sess, err := h.store.Get(r.Context(), id); err == nil {
		if data, err := encode(sess); err == nil {
			h.hub.conns.Send(client, data)
		}
	}

	// Watchers only listen; reads just detect the close.
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

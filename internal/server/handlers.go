package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/christopherjohns/blanc/internal/ipfs"
	"github.com/christopherjohns/blanc/internal/qrcode"
	"github.com/christopherjohns/blanc/internal/session"
)

var validate = validator.New()

type createSessionRequest struct {
	SessionID string `json:"sessionId"`
	Creator   string `json:"creator"`
}

type createSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
}

type addParticipantRequest struct {
	Participant string `json:"participant" validate:"required,max=256"`
}

type addParticipantResponse struct {
	Success      bool     `json:"success"`
	Added        bool     `json:"added"`
	Participants []string `json:"participants"`
}

type mediaResponse struct {
	URI       string   `json:"uri"`
	Gateway   string   `json:"gateway"`
	Fallbacks []string `json:"fallbacks"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
}

// newSessionID returns an identifier in the form scanners recognise.
func newSessionID() string {
	return qrcode.SessionPrefix + uuid.NewString()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateSession always succeeds once the body parses. A missing
// sessionId is generated.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.log.Error("create session: bad body", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	if req.SessionID == "" {
		req.SessionID = newSessionID()
	}

	if _, err := s.store.Create(r.Context(), req.SessionID, req.Creator); err != nil {
		s.log.Error("create session", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	s.metrics.SessionsCreated.Inc()
	s.log.Info("session created", "session_id", req.SessionID, "creator", req.Creator)

	writeJSON(w, http.StatusOK, createSessionResponse{Success: true, SessionID: req.SessionID})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}

	sess, err := s.store.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.log.Error("get session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleAddParticipant answers 200 for duplicates too, with added=false,
// so repeated scans from the same device are harmless.
func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")

	var req addParticipantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.log.Error("add participant: bad body", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add participant")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Participant required")
		return
	}

	added, sess, err := s.store.AddParticipant(r.Context(), id, req.Participant)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.log.Error("add participant", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add participant")
		return
	}

	if added {
		s.metrics.ParticipantsAdded.Inc()
		s.log.Info("participant joined", "session_id", id, "participant", req.Participant)
		s.hub.Broadcast(sess)
	} else {
		s.metrics.DuplicateJoins.Inc()
	}

	writeJSON(w, http.StatusOK, addParticipantResponse{
		Success:      true,
		Added:        added,
		Participants: sess.Participants,
	})
}

func sizeParam(r *http.Request) int {
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		return qrcode.DefaultSize
	}
	return size
}

func (s *Server) writePNG(w http.ResponseWriter, payload string, size int) {
	png, err := qrcode.PNG(payload, size)
	if err != nil {
		s.log.Error("render qr", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleSessionQR renders the join code for a session. The code carries
// the session ID itself, which the scanning device posts back as the
// participants route parameter.
func (s *Server) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.log.Error("session qr", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	s.writePNG(w, id, sizeParam(r))
}

// handleQR renders a code for an arbitrary session, address or post ID.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID required")
		return
	}
	s.writePNG(w, qrcode.Payload(s.origin, id), sizeParam(r))
}

// sniffLen is how many leading bytes are read to detect the upload type.
const sniffLen = 3072

func isMedia(kind *mimetype.MIME) bool {
	m := kind.String()
	return strings.HasPrefix(m, "image/") || strings.HasPrefix(m, "video/")
}

func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if s.pinner == nil {
		writeError(w, http.StatusServiceUnavailable, "Pinning not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File required")
		return
	}
	defer file.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "File required")
		return
	}
	head = head[:n]
	if kind := mimetype.Detect(head); !isMedia(kind) {
		writeError(w, http.StatusUnsupportedMediaType, "Only images and videos can be attached")
		return
	}

	uri, err := s.pinner.Pin(r.Context(), hdr.Filename, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		s.metrics.MediaPinned.WithLabelValues("error").Inc()
		s.log.Error("pin media", "filename", hdr.Filename, "error", err)
		if errors.Is(err, ipfs.ErrNoCredentials) {
			writeError(w, http.StatusServiceUnavailable, "Pinning not configured")
			return
		}
		writeError(w, http.StatusBadGateway, "Upload failed")
		return
	}
	s.metrics.MediaPinned.WithLabelValues("ok").Inc()
	s.log.Info("media pinned", "filename", hdr.Filename, "uri", uri)

	writeJSON(w, http.StatusOK, mediaResponse{
		URI:       uri,
		Gateway:   ipfs.GatewayURL(uri),
		Fallbacks: ipfs.FallbackURLs(uri),
	})
}

// Package session keeps the short-lived records that coordinate which
// identities joined a post-creation flow by scanning a QR code.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when no live session exists for an ID.
var ErrNotFound = errors.New("session not found")

// Session is a keyed participant list created by the composing user.
type Session struct {
	ID           string
	Creator      string
	CreatedAt    time.Time
	Participants []string
}

type sessionJSON struct {
	ID           string   `json:"sessionId,omitempty"`
	Creator      string   `json:"creator"`
	Timestamp    int64    `json:"timestamp"`
	Participants []string `json:"participants"`
}

// MarshalJSON encodes the creation time as unix milliseconds and always
// emits participants as an array.
func (s *Session) MarshalJSON() ([]byte, error) {
	participants := s.Participants
	if participants == nil {
		participants = []string{}
	}
	return json.Marshal(sessionJSON{
		ID:           s.ID,
		Creator:      s.Creator,
		Timestamp:    s.CreatedAt.UnixMilli(),
		Participants: participants,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Session) UnmarshalJSON(data []byte) error {
	var v sessionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.ID = v.ID
	s.Creator = v.Creator
	s.CreatedAt = time.UnixMilli(v.Timestamp)
	s.Participants = v.Participants
	if s.Participants == nil {
		s.Participants = []string{}
	}
	return nil
}

// Has reports whether participant already joined the session.
func (s *Session) Has(participant string) bool {
	return slices.Contains(s.Participants, participant)
}

// clone returns a copy that does not share the participant slice.
func (s *Session) clone() *Session {
	c := *s
	c.Participants = append(make([]string, 0, len(s.Participants)), s.Participants...)
	return &c
}

// Store is the interface for session registry backends.
type Store interface {
	// Create stores a new session with no participants. An existing
	// session with the same ID is replaced.
	Create(ctx context.Context, id, creator string) (*Session, error)

	// Get returns a snapshot of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// AddParticipant appends participant unless it already joined. The
	// returned bool is false for duplicates; that is not an error.
	AddParticipant(ctx context.Context, id, participant string) (bool, *Session, error)

	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

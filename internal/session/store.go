package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Contents are lost on
// restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL expires sessions ttl after creation. Zero (the default) keeps
// sessions until the process exits.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// WithLogger sets the logger used for store events.
func WithLogger(log *slog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.log = log
	}
}

// withClock overrides time.Now for tests.
func withClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// expired reports whether sess has outlived the TTL.
func (s *MemoryStore) expired(sess *Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.CreatedAt) >= s.ttl
}

// live returns the session for id if present and not expired.
// Must be called while holding mu.
func (s *MemoryStore) live(id string) *Session {
	sess, ok := s.sessions[id]
	if !ok || s.expired(sess, s.now()) {
		return nil
	}
	return sess
}

// Create stores a new session, replacing any previous one with the same ID.
func (s *MemoryStore) Create(_ context.Context, id, creator string) (*Session, error) {
	sess := &Session{
		ID:           id,
		Creator:      creator,
		CreatedAt:    s.now(),
		Participants: []string{},
	}
	s.mu.Lock()
	s.sessions[id] = sess
	total := len(s.sessions)
	s.mu.Unlock()

	s.log.Debug("session created", "session_id", id, "creator", creator, "total", total)
	return sess.clone(), nil
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.live(id)
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess.clone(), nil
}

// AddParticipant appends participant if it has not joined yet.
func (s *MemoryStore) AddParticipant(_ context.Context, id, participant string) (bool, *Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(id)
	if sess == nil {
		return false, nil, ErrNotFound
	}
	if sess.Has(participant) {
		return false, sess.clone(), nil
	}
	sess.Participants = append(sess.Participants, participant)
	s.log.Debug("participant added", "session_id", id, "participant", participant, "count", len(sess.Participants))
	return true, sess.clone(), nil
}

// Count returns the number of unexpired sessions.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ttl == 0 {
		return len(s.sessions), nil
	}
	now := s.now()
	n := 0
	for _, sess := range s.sessions {
		if !s.expired(sess, now) {
			n++
		}
	}
	return n, nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	if s.ttl == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl == 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("expired sessions swept", "removed", n)
			}
		}
	}
}

// Close drops all sessions.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	return nil
}

package sessionclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/christopherjohns/blanc/internal/session"
)

// DefaultInterval is how often subscribed sessions are re-fetched.
const DefaultInterval = 2 * time.Second

// API is the subset of Client the Poller needs.
type API interface {
	GetSession(ctx context.Context, id string) (*session.Session, error)
	AddParticipant(ctx context.Context, id, participant string) (*AddResult, error)
}

// Listener receives every snapshot of a subscribed session.
type Listener func(*session.Session)

// Poller re-fetches each subscribed session on a fixed interval and
// delivers the result to that session's listeners. Sessions are polled
// only while they have at least one listener.
type Poller struct {
	api      API
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]Listener
	last   map[string]*session.Session
	nextID uint64
}

// NewPoller creates a Poller. A non-positive interval uses DefaultInterval.
func NewPoller(api API, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		api:      api,
		interval: interval,
		log:      log,
		subs:     make(map[string]map[uint64]Listener),
		last:     make(map[string]*session.Session),
	}
}

// Subscribe registers fn for updates to sessionID. The returned function
// removes it; it is safe to call more than once.
func (p *Poller) Subscribe(sessionID string, fn Listener) (unsubscribe func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	if p.subs[sessionID] == nil {
		p.subs[sessionID] = make(map[uint64]Listener)
	}
	p.subs[sessionID][id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			listeners := p.subs[sessionID]
			delete(listeners, id)
			if len(listeners) == 0 {
				delete(p.subs, sessionID)
				delete(p.last, sessionID)
			}
		})
	}
}

// Subscribed returns the IDs of sessions that currently have listeners.
func (p *Poller) Subscribed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.Keys(p.subs)
}

// notify delivers sess to the listeners of its session. Listeners run
// outside the lock so they may unsubscribe.
func (p *Poller) notify(sess *session.Session) {
	p.mu.Lock()
	listeners := p.subs[sess.ID]
	if len(listeners) > 0 {
		p.last[sess.ID] = sess
	}
	targets := lo.Values(listeners)
	p.mu.Unlock()

	for _, fn := range targets {
		fn(sess)
	}
}

// AddParticipant joins participant through the API and, on success,
// notifies listeners right away instead of waiting for the next poll.
// Creator and creation time come from the last polled snapshot; before the
// first poll the session is fetched once so listeners never see a partial
// snapshot.
func (p *Poller) AddParticipant(ctx context.Context, sessionID, participant string) (bool, error) {
	res, err := p.api.AddParticipant(ctx, sessionID, participant)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	prev := p.last[sessionID]
	watched := len(p.subs[sessionID]) > 0
	p.mu.Unlock()
	if !watched {
		return res.Added, nil
	}

	if prev == nil {
		sess, err := p.api.GetSession(ctx, sessionID)
		if err != nil {
			p.log.Warn("add: snapshot fetch failed", "session_id", sessionID, "error", err)
			return res.Added, nil
		}
		p.notify(sess)
		return res.Added, nil
	}

	p.notify(&session.Session{
		ID:           sessionID,
		Creator:      prev.Creator,
		CreatedAt:    prev.CreatedAt,
		Participants: res.Participants,
	})
	return res.Added, nil
}

// PollOnce fetches every subscribed session concurrently and notifies
// listeners. Failures are logged and skipped.
func (p *Poller) PollOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for _, id := range p.Subscribed() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, p.interval)
			defer cancel()

			sess, err := p.api.GetSession(fetchCtx, id)
			switch {
			case errors.Is(err, session.ErrNotFound):
				p.log.Debug("poll: session not found", "session_id", id)
			case err != nil:
				p.log.Warn("poll: fetch failed", "session_id", id, "error", err)
			default:
				p.notify(sess)
			}
		}(id)
	}
	wg.Wait()
}

// Run polls every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

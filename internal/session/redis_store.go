package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

func metaKey(id string) string         { return keyPrefix + id + ":meta" }
func participantsKey(id string) string { return keyPrefix + id + ":participants" }
func membersKey(id string) string      { return keyPrefix + id + ":members" }

// addScript appends ARGV[1] to the participant list when the session
// exists and the identity is not yet a member. Returns -1 for a missing
// session, 0 for a duplicate and 1 when added. Participant keys inherit
// the TTL of the meta hash.
var addScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local added = redis.call('SADD', KEYS[3], ARGV[1])
if added == 1 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl > 0 then
		redis.call('PEXPIRE', KEYS[2], ttl)
		redis.call('PEXPIRE', KEYS[3], ttl)
	end
end
return added
`)

// RedisStore keeps sessions in Redis so several server replicas share one
// registry. Each session is a meta hash, an ordered participant list and a
// membership set used for deduplication.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedisStore creates a RedisStore. A positive ttl sets key expiry on
// every session.
func NewRedisStore(client redis.Cmdable, ttl time.Duration, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// Create writes a fresh session, discarding participants of any previous
// session with the same ID.
func (s *RedisStore) Create(ctx context.Context, id, creator string) (*Session, error) {
	now := time.Now()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, metaKey(id), participantsKey(id), membersKey(id))
		pipe.HSet(ctx, metaKey(id),
			"creator", creator,
			"created_at", now.UnixMilli(),
		)
		if s.ttl > 0 {
			pipe.PExpire(ctx, metaKey(id), s.ttl)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: create session %s: %w", id, err)
	}

	s.log.Debug("session created", "session_id", id, "creator", creator)
	return &Session{
		ID:           id,
		Creator:      creator,
		CreatedAt:    time.UnixMilli(now.UnixMilli()),
		Participants: []string{},
	}, nil
}

// Get reads the session meta hash and participant list.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		meta  *redis.MapStringStringCmd
		names *redis.StringSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, metaKey(id))
		names = pipe.LRange(ctx, participantsKey(id), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: get session %s: %w", id, err)
	}

	fields := meta.Val()
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	millis, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: session %s has bad created_at %q: %w", id, fields["created_at"], err)
	}

	participants := names.Val()
	if participants == nil {
		participants = []string{}
	}
	return &Session{
		ID:           id,
		Creator:      fields["creator"],
		CreatedAt:    time.UnixMilli(millis),
		Participants: participants,
	}, nil
}

// AddParticipant runs the add script and returns the updated session.
func (s *RedisStore) AddParticipant(ctx context.Context, id, participant string) (bool, *Session, error) {
	keys := []string{metaKey(id), participantsKey(id), membersKey(id)}
	res, err := addScript.Run(ctx, s.client, keys, participant).Int64()
	if err != nil {
		return false, nil, fmt.Errorf("redis: add participant to %s: %w", id, err)
	}
	if res < 0 {
		return false, nil, ErrNotFound
	}

	sess, err := s.Get(ctx, id)
	if err != nil {
		return false, nil, err
	}
	if res == 1 {
		s.log.Debug("participant added", "session_id", id, "participant", participant, "count", len(sess.Participants))
	}
	return res == 1, sess, nil
}

// Count scans for session meta keys.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*:meta", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis: count sessions: %w", err)
		}
		n += len(keys)
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}

// Close closes the underlying client when it owns a connection pool.
func (s *RedisStore) Close() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

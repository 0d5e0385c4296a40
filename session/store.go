package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when Redis could not serve a request.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned (joined with [redis.Nil]) when a session
// does not exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionCorrupt is returned when a stored session blob cannot be decoded.
var ErrSessionCorrupt = errors.New("session corrupt")

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store that handles persistence, expiration,
// sliding renewal and the per-user session index.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	expiresIn time.Duration
	updateAge time.Duration
	now       func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace. A read renews a session to
// now+expiresIn once updateAge has elapsed since its last renewal; a zero
// updateAge disables renewal.
func NewStore(
	redis redis.UniversalClient,
	prefix string,
	expiresIn time.Duration,
	updateAge time.Duration,
) *Store {
	return &Store{
		redis:     redis,
		prefix:    prefix,
		expiresIn: expiresIn,
		updateAge: updateAge,
		now:       time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

func notFound() error {
	return errors.Join(redis.Nil, ErrSessionNotFound)
}

// Save persists a [Session] to Redis with the given TTL and adds it to the
// owner's session index.
//
//	Performance: 1 MULTI/EXEC with SET + SADD + EXPIRE.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("session ttl must be > 0")
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.SessionID)
	userKey := s.userKey(sess.UserID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.Expire(ctx, userKey, s.indexTTL(ttl))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by ID, renewing it when it is due.
//
// Missing or expired sessions return an error matching both [redis.Nil] and
// [ErrSessionNotFound]. An undecodable blob returns [ErrSessionCorrupt].
// Any other failure wraps [ErrRedisUnavailable].
//
//	Performance: 1 GET; +1 MULTI/EXEC at most once per updateAge.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := s.key(sessionID)
	now := s.now()

	var current *Session
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return notFound()
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		sess, err := Decode(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		}
		sess.SessionID = sessionID
		current = sess

		if now.Unix() >= sess.ExpiresAt {
			return notFound()
		}
		if !s.renewalDue(sess, now) {
			return nil
		}

		renewed := sess.Clone()
		renewed.UpdatedAt = now.Unix()
		renewed.ExpiresAt = now.Add(s.expiresIn).Unix()
		encoded, err := Encode(renewed)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.expiresIn)
			pipe.Expire(ctx, s.userKey(sess.UserID), s.indexTTL(s.expiresIn))
			return nil
		})
		if err != nil {
			return err
		}
		current = renewed
		return nil
	}, key)

	switch {
	case err == nil:
		return current, nil
	case errors.Is(err, redis.TxFailedErr):
		// A concurrent writer touched the record; the next read renews it.
		return current, nil
	case errors.Is(err, ErrSessionNotFound):
		if current != nil {
			if delErr := s.deleteSessionAndIndex(ctx, current.UserID, sessionID); delErr != nil {
				return nil, delErr
			}
		}
		return nil, err
	case errors.Is(err, ErrSessionCorrupt), errors.Is(err, ErrRedisUnavailable):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}

func (s *Store) renewalDue(sess *Session, now time.Time) bool {
	if s.updateAge <= 0 || s.expiresIn <= 0 {
		return false
	}
	return now.Sub(time.Unix(sess.UpdatedAt, 0)) >= s.updateAge
}

// indexTTL keeps the user index alive for at least as long as the longest
// session it references.
func (s *Store) indexTTL(ttl time.Duration) time.Duration {
	if s.expiresIn > ttl {
		return s.expiresIn
	}
	return ttl
}

// Delete removes a session and its index entry. Deleting a missing session
// is not an error.
//
//	Performance: 1 GET + 1 Lua EVALSHA.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}

	return s.deleteSessionAndIndex(ctx, sess.UserID, sessionID)
}

// DeleteAllForUser removes every indexed session of userID and returns the
// IDs that were indexed.
//
// The index read and the delete are separate round trips; a session saved
// in between survives until its own expiry or the next call.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessionKeys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sessionKeys = append(sessionKeys, s.key(sessionID))
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sessionKeys) > 0 {
			pipe.Del(ctx, sessionKeys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sessionIDs, nil
}

// UpdateRole rewrites the role of every live session of userID, preserving
// each session's remaining TTL. It returns the IDs of the sessions that were
// rewritten and prunes index entries whose sessions are gone.
func (s *Store) UpdateRole(ctx context.Context, userID string, role uint8) ([]string, error) {
	sessionIDs, err := s.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated := make([]string, 0, len(sessionIDs))
	var stale []any
	for _, sessionID := range sessionIDs {
		ok, err := s.rewriteRole(ctx, sessionID, role)
		if err != nil {
			return updated, err
		}
		if ok {
			updated = append(updated, sessionID)
		} else {
			stale = append(stale, sessionID)
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return updated, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return updated, nil
}

func (s *Store) rewriteRole(ctx context.Context, sessionID string, role uint8) (bool, error) {
	key := s.key(sessionID)

	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		found := false
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return nil
				}
				return err
			}

			sess, err := Decode(data)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
			}
			found = true
			if sess.Role == role {
				return nil
			}
			sess.Role = role

			encoded, err := Encode(sess)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, encoded, redis.SetArgs{Mode: "XX", KeepTTL: true})
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return found, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrSessionCorrupt):
			return false, err
		default:
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return false, fmt.Errorf("%w: role rewrite contended", ErrRedisUnavailable)
}

// ActiveSessionIDs returns the indexed session IDs of userID.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, userID, sessionID string) error {
	key := s.key(sessionID)
	userKey := s.userKey(userID)

	_, err := deleteSessionLua.Run(ctx, s.redis, []string{key, userKey}, sessionID).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

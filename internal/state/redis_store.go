package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPattern  = "conv:session:%d"
	sessionScanPattern = "conv:session:*"
	lockKeyPattern     = "conv:lock:%d"

	lockTTL        = 5 * time.Second
	defaultSession = time.Hour
)

// RedisStore persists conversation sessions in Redis as JSON blobs. Every
// read-modify-write runs under a short per-user SetNX lock so two
// near-simultaneous updates from the same user cannot interleave.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

// NewRedisStore initializes a Redis-backed Store implementation.
func NewRedisStore(client *redis.Client, log *slog.Logger, ttl time.Duration) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultSession
	}

	return &RedisStore{
		client: client,
		log:    log,
		ttl:    ttl,
	}
}

// SetStep records the current wizard step, preserving flow data.
func (s *RedisStore) SetStep(ctx context.Context, userID int64, step Step) error {
	return s.mutate(ctx, userID, func(sess *Session) {
		transitionRecorder(string(sess.Step), string(step))
		sess.Step = step
	})
}

// GetStep returns the current step or ErrNotFound.
func (s *RedisStore) GetStep(ctx context.Context, userID int64) (Step, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if sess.Step == "" {
		return "", ErrNotFound
	}
	return sess.Step, nil
}

// ClearStep removes the step but keeps flow data.
func (s *RedisStore) ClearStep(ctx context.Context, userID int64) error {
	return s.mutate(ctx, userID, func(sess *Session) {
		sess.Step = ""
	})
}

// SetFlowData stores one scratch value in the user's session.
func (s *RedisStore) SetFlowData(ctx context.Context, userID int64, key, value string) error {
	return s.mutate(ctx, userID, func(sess *Session) {
		if sess.FlowData == nil {
			sess.FlowData = make(map[string]string)
		}
		sess.FlowData[key] = value
	})
}

// GetFlowData returns a scratch value; missing sessions or keys yield "".
func (s *RedisStore) GetFlowData(ctx context.Context, userID int64, key string) (string, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return sess.FlowData[key], nil
}

// ClearFlowData removes every scratch value for the user.
func (s *RedisStore) ClearFlowData(ctx context.Context, userID int64) error {
	return s.mutate(ctx, userID, func(sess *Session) {
		sess.FlowData = nil
	})
}

// Clear removes the whole session.
func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.lock(ctx, userID); err != nil {
		return err
	}
	defer s.unlock(ctx, userID)

	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		s.log.Error("failed to clear conversation session", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// Sessions returns every live session by scanning Redis keys.
func (s *RedisStore) Sessions(ctx context.Context) ([]*Session, error) {
	var (
		cursor uint64
		result []*Session
	)

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, sessionScanPattern, 100).Result()
		if err != nil {
			s.log.Error("failed to scan conversation sessions", "error", err)
			return nil, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				s.log.Error("failed to fetch conversation session", "key", key, "error", err)
				return nil, err
			}

			var sess Session
			if err := json.Unmarshal([]byte(data), &sess); err != nil {
				s.log.Error("failed to decode conversation session", "key", key, "error", err)
				continue
			}

			copied := sess
			result = append(result, &copied)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func (s *RedisStore) load(ctx context.Context, userID int64) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		s.log.Error("failed to get conversation session", "user_id", userID, "error", err)
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		s.log.Error("failed to decode conversation session", "user_id", userID, "error", err)
		return nil, err
	}

	return &sess, nil
}

func (s *RedisStore) mutate(ctx context.Context, userID int64, apply func(*Session)) error {
	if err := s.lock(ctx, userID); err != nil {
		return err
	}
	defer s.unlock(ctx, userID)

	sess, err := s.load(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		sess = &Session{UserID: userID}
	}

	apply(sess)
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		s.log.Error("failed to encode conversation session", "user_id", userID, "error", err)
		return err
	}

	if err := s.client.Set(ctx, sessionKey(userID), data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save conversation session", "user_id", userID, "error", err)
		return err
	}

	return nil
}

func (s *RedisStore) lock(ctx context.Context, userID int64) error {
	key := fmt.Sprintf(lockKeyPattern, userID)

	// Short bounded wait: a competing event from the same user usually
	// finishes within a few milliseconds.
	deadline := time.Now().Add(lockTTL)
	for {
		acquired, err := s.client.SetNX(ctx, key, 1, lockTTL).Result()
		if err != nil {
			s.log.Error("failed to acquire conversation lock", "user_id", userID, "error", err)
			return err
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			s.log.Warn("conversation lock already held", "user_id", userID)
			return ErrLocked
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (s *RedisStore) unlock(ctx context.Context, userID int64) {
	key := fmt.Sprintf(lockKeyPattern, userID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.log.Error("failed to release conversation lock", "user_id", userID, "error", err)
	}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf(sessionKeyPattern, userID)
}

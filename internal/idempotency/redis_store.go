package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists idempotency records as JSON values.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore builds a redis-backed Store.
func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Begin(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(&Record{Status: StatusProcessing})
	if err != nil {
		return false, err
	}

	claimed, err := s.client.SetNX(ctx, storageKey(key), data, ttl).Result()
	if err != nil {
		s.log.Error("failed to claim idempotency key", "key", key, "error", err)
		return false, err
	}
	return claimed, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	data, err := json.Marshal(&Record{Status: StatusCompleted, Response: response})
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, storageKey(key), data, ttl).Err(); err != nil {
		s.log.Error("failed to complete idempotency key", "key", key, "error", err)
		return err
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, storageKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		s.log.Error("failed to get idempotency record", "key", key, "error", err)
		return nil, err
	}

	var record Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, storageKey(key)).Err()
}

func storageKey(key string) string {
	return "idem:" + key
}

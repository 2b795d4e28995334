// Package ratelimit protects the pipeline from duplicate and abusive
// traffic: update-id deduplication, a per-user callback anti-spam lock, and
// a sliding-window limiter for message floods.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupTTL       = 10 * time.Minute
	callbackWindow = 3 * time.Second
	floodLimit     = 20
	floodWindow    = 10 * time.Second
)

// Guard implements the cheap pre-dispatch checks.
type Guard struct {
	client  *redis.Client
	limiter Limiter
	log     *slog.Logger
}

// NewGuard builds a redis-backed Guard.
func NewGuard(client *redis.Client, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}

	return &Guard{client: client, limiter: NewRedisLimiter(client, log), log: log}
}

// SeenUpdate marks the update id as processed and reports whether it had
// been seen before. Telegram redelivers updates after restarts and network
// hiccups; a seen update must be dropped without side effects.
func (g *Guard) SeenUpdate(ctx context.Context, updateID int) (bool, error) {
	key := fmt.Sprintf("dedup:update:%d", updateID)

	fresh, err := g.client.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		g.log.Error("update dedup check failed", "update_id", updateID, "error", err)
		return false, err
	}
	return !fresh, nil
}

// CallbackBusy takes the per-user callback lock and reports whether a
// callback from the same user is already inside the window. Double-taps on
// inline buttons land here before any handler runs.
func (g *Guard) CallbackBusy(ctx context.Context, userID int64) (bool, error) {
	key := fmt.Sprintf("antispam:cb:%d", userID)

	acquired, err := g.client.SetNX(ctx, key, 1, callbackWindow).Result()
	if err != nil {
		g.log.Error("callback anti-spam check failed", "user_id", userID, "error", err)
		return false, err
	}
	return !acquired, nil
}

// MessageAllowed applies the sliding-window flood limit to inbound text
// messages. The check fails open: a broken limiter must not block the bot.
func (g *Guard) MessageAllowed(ctx context.Context, userID int64) bool {
	result, err := g.limiter.Check(ctx, fmt.Sprintf("msg:%d", userID), floodLimit, floodWindow)
	if err != nil {
		return true
	}
	return result.Allowed
}

// ReleaseCallback drops the per-user callback lock early, once the handler
// finished. Without it the user waits out the full window between taps.
func (g *Guard) ReleaseCallback(ctx context.Context, userID int64) {
	key := fmt.Sprintf("antispam:cb:%d", userID)
	if err := g.client.Del(ctx, key).Err(); err != nil {
		g.log.Error("failed to release callback lock", "user_id", userID, "error", err)
	}
}

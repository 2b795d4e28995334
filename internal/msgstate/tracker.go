// Package msgstate remembers, per user, the bot's current message in the
// chat: its id and what kind of keyboard it carries. The choreographer uses
// this record to decide whether the next render edits, replaces, or
// refreshes that message.
package msgstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mode describes the keyboard attached to a rendered message.
type Mode string

const (
	// ModeNone is plain text without any keyboard.
	ModeNone Mode = "none"
	// ModeReply is a persistent reply keyboard under the composer.
	ModeReply Mode = "reply"
	// ModeInline is an inline keyboard attached to the message body.
	ModeInline Mode = "inline"
)

// Record is the tracked state of the bot's last message for one user.
type Record struct {
	MessageID int       `json:"message_id"`
	Mode      Mode      `json:"mode"`
	Editable  bool      `json:"editable"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrNotFound indicates no message is currently tracked for the user.
var ErrNotFound = errors.New("message state not found")

// Tracker persists Records in Redis.
type Tracker struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

// NewTracker builds a redis-backed Tracker.
func NewTracker(client *redis.Client, log *slog.Logger, ttl time.Duration) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Tracker{client: client, log: log, ttl: ttl}
}

// Set records the bot's current message for the user.
func (t *Tracker) Set(ctx context.Context, userID int64, rec Record) error {
	rec.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := t.client.Set(ctx, recordKey(userID), data, t.ttl).Err(); err != nil {
		t.log.Error("failed to save message state", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// Get returns the tracked message or ErrNotFound.
func (t *Tracker) Get(ctx context.Context, userID int64) (*Record, error) {
	data, err := t.client.Get(ctx, recordKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		t.log.Error("failed to get message state", "user_id", userID, "error", err)
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		t.log.Error("failed to decode message state", "user_id", userID, "error", err)
		return nil, err
	}

	return &rec, nil
}

// Clear forgets the tracked message for the user.
func (t *Tracker) Clear(ctx context.Context, userID int64) error {
	if err := t.client.Del(ctx, recordKey(userID)).Err(); err != nil {
		t.log.Error("failed to clear message state", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func recordKey(userID int64) string {
	return fmt.Sprintf("msg:state:%d", userID)
}

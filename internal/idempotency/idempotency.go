// Package idempotency makes wizard confirm steps single-shot. A confirm tap
// computes a key from the user, the wizard, and a fingerprint of the data
// being confirmed; the first tap runs the operation, every concurrent or
// repeated tap with the same key is absorbed.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrInProgress reports that the same operation is currently executing.
// Callers drop the duplicate silently.
var ErrInProgress = errors.New("operation with this key is already in progress")

// Status of a stored record.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// Record is the stored outcome of one idempotent operation.
type Record struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Store persists idempotency records.
type Store interface {
	// Begin atomically claims the key for processing. Returns false when
	// the key already exists.
	Begin(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Complete overwrites the key with the finished record.
	Complete(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Get returns the record or nil when absent.
	Get(ctx context.Context, key string) (*Record, error)
	// Release removes a claimed key after a failed operation so the user
	// can retry.
	Release(ctx context.Context, key string) error
}

// ConfirmKey derives the idempotency key for a wizard confirmation from the
// user, the wizard name, and the fingerprint of the confirmed data. The same
// data confirmed twice hashes to the same key.
func ConfirmKey(userID int64, wizard string, fingerprint ...string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", userID, wizard, strings.Join(fingerprint, "|"))))
	return "confirm:" + hex.EncodeToString(sum[:])
}

// Operation is the guarded unit of work.
type Operation func(ctx context.Context) (any, error)

// Result carries the operation outcome and whether it was served from cache.
type Result struct {
	Response  json.RawMessage
	FromCache bool
}

// Manager executes operations at most once per key.
type Manager struct {
	store Store
	log   *slog.Logger
	ttl   time.Duration
}

// NewManager builds a Manager. ttl bounds how long a completed confirmation
// suppresses replays.
func NewManager(store Store, log *slog.Logger, ttl time.Duration) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Manager{store: store, log: log, ttl: ttl}
}

// Execute runs fn at most once for the key. A second call while fn runs
// returns ErrInProgress; a call after completion returns the cached result.
func (m *Manager) Execute(ctx context.Context, key string, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	claimed, err := m.store.Begin(ctx, key, m.ttl)
	if err != nil {
		return nil, err
	}

	if !claimed {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record == nil || record.Status == StatusProcessing {
			return nil, ErrInProgress
		}
		return &Result{Response: record.Response, FromCache: true}, nil
	}

	response, err := fn(ctx)
	if err != nil {
		// Failed operations must stay retryable.
		if relErr := m.store.Release(ctx, key); relErr != nil {
			m.log.Error("failed to release idempotency key", "key", key, "error", relErr)
		}
		return nil, err
	}

	data, err := json.Marshal(response)
	if err != nil {
		return nil, err
	}
	if err := m.store.Complete(ctx, key, data, m.ttl); err != nil {
		return nil, err
	}

	return &Result{Response: data}, nil
}

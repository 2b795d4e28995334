package state

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates that no session exists for the user.
	ErrNotFound = errors.New("conversation state not found")
	// ErrLocked indicates that a concurrent update already holds the
	// per-user lock. Callers treat this as "drop the duplicate event".
	ErrLocked = errors.New("conversation state is locked")
)

// Store is the persistence contract for conversation state. All operations
// act on the single session a user may have; flow data lives inside that
// session so clearing state and clearing data stay atomic.
type Store interface {
	// SetStep records the user's current wizard step, preserving flow data.
	SetStep(ctx context.Context, userID int64, step Step) error
	// GetStep returns the current step or ErrNotFound.
	GetStep(ctx context.Context, userID int64) (Step, error)
	// ClearStep removes the step but keeps flow data (used between
	// sub-flows of the same wizard). Rarely needed; most callers Clear.
	ClearStep(ctx context.Context, userID int64) error

	// SetFlowData stores one scratch value for the user's session.
	SetFlowData(ctx context.Context, userID int64, key, value string) error
	// GetFlowData returns a scratch value; missing keys yield "" and no error.
	GetFlowData(ctx context.Context, userID int64, key string) (string, error)
	// ClearFlowData removes every scratch value for the user.
	ClearFlowData(ctx context.Context, userID int64) error

	// Clear removes the whole session: step and flow data together.
	Clear(ctx context.Context, userID int64) error

	// Sessions returns every live session, for metrics and the TTL cleaner.
	Sessions(ctx context.Context) ([]*Session, error)
}

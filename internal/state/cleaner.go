package state

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner removes abandoned conversation sessions on a schedule. Redis TTLs
// already bound session lifetime; the cleaner exists so a shortened
// configured TTL takes effect on sessions written under a longer one.
type Cleaner struct {
	store    Store
	log      *slog.Logger
	maxAge   time.Duration
	interval time.Duration
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(store Store, log *slog.Logger, maxAge, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		store:    store,
		log:      log,
		maxAge:   maxAge,
		interval: interval,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("session cleaner stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	sessions, err := c.store.Sessions(ctx)
	if err != nil {
		c.log.Error("session cleaner scan failed", slog.Any("error", err))
		return
	}

	for _, sess := range sessions {
		if sess == nil || time.Since(sess.UpdatedAt) <= c.maxAge {
			continue
		}

		if err := c.store.Clear(ctx, sess.UserID); err != nil {
			c.log.Error("session cleaner failed to clear session",
				slog.Int64("user_id", sess.UserID), slog.Any("error", err))
			continue
		}

		c.log.Info("stale session cleared", slog.Int64("user_id", sess.UserID))
	}
}

// Package dispatch routes normalized updates through an ordered chain of
// handlers. The first handler that claims an update wins; a handler may
// inspect an update, decline it, and let the chain continue.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qsmarket/market-bot/internal/update"
)

// Handler is one link in the dispatch chain.
type Handler interface {
	// Name identifies the handler in logs and metrics.
	Name() string
	// CanHandle cheaply reports whether this handler wants the update.
	// It must not have side effects.
	CanHandle(ctx context.Context, u *update.Context) bool
	// Handle processes the update. Returning handled=false passes the
	// update on to the next handler in the chain.
	Handle(ctx context.Context, u *update.Context) (handled bool, err error)
}

var dispatchRecorder = func(handler, outcome string, elapsed time.Duration) {}

// RegisterDispatchRecorder lets the metrics package observe dispatch results.
func RegisterDispatchRecorder(recorder func(handler, outcome string, elapsed time.Duration)) {
	if recorder == nil {
		dispatchRecorder = func(string, string, time.Duration) {}
		return
	}

	dispatchRecorder = recorder
}

// Dispatcher walks the handler chain in registration order.
type Dispatcher struct {
	handlers []Handler
	fallback Handler
	onError  func(ctx context.Context, u *update.Context, err error)
	log      *slog.Logger
}

// SetErrorHandler installs a callback invoked after a handler returns an
// error, e.g. to translate it into a user-facing notice. Errors still stop
// the chain either way.
func (d *Dispatcher) SetErrorHandler(fn func(ctx context.Context, u *update.Context, err error)) {
	d.onError = fn
}

// New builds a Dispatcher. The fallback runs when no handler claims the
// update; it may be nil.
func New(log *slog.Logger, fallback Handler, handlers ...Handler) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		handlers: handlers,
		fallback: fallback,
		log:      log,
	}
}

// Dispatch routes one update. Handler errors and panics are contained here:
// they are logged with a redacted preview of the update and never propagate
// to the transport layer.
func (d *Dispatcher) Dispatch(ctx context.Context, u *update.Context) {
	if u == nil {
		return
	}

	for _, h := range d.handlers {
		if !h.CanHandle(ctx, u) {
			continue
		}

		if d.run(ctx, h, u) {
			return
		}
	}

	if d.fallback != nil {
		d.run(ctx, d.fallback, u)
	}
}

func (d *Dispatcher) run(ctx context.Context, h Handler, u *update.Context) (handled bool) {
	started := time.Now()
	outcome := "ok"

	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			handled = true
			d.log.Error("handler panicked",
				slog.String("handler", h.Name()),
				slog.Int64("user_id", u.UserID),
				slog.String("update", u.Preview()),
				slog.Any("panic", r),
				slog.String("error", fmt.Sprintf("%v", r)))
		}
		dispatchRecorder(h.Name(), outcome, time.Since(started))
	}()

	handled, err := h.Handle(ctx, u)
	if err != nil {
		outcome = "error"
		d.log.Error("handler failed",
			slog.String("handler", h.Name()),
			slog.Int64("user_id", u.UserID),
			slog.String("update", u.Preview()),
			slog.Any("error", err))
		if d.onError != nil {
			d.onError(ctx, u, err)
		}
		// A handler that errored still consumed the update; letting the
		// chain continue would double-process it.
		return true
	}

	return handled
}

// Package bot wires the Telegram long-poll transport to the dispatch chain:
// raw updates are normalized, deduplicated, rate-guarded, and handed to the
// dispatcher. Nothing below this package imports telebot.
package bot

import (
	"context"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/qsmarket/market-bot/internal/dispatch"
	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/ratelimit"
	"github.com/qsmarket/market-bot/internal/responder"
	"github.com/qsmarket/market-bot/internal/update"
	"github.com/qsmarket/market-bot/pkg/logger"
)

// Bot runs the long-poll loop.
type Bot struct {
	tb         *telebot.Bot
	sender     responder.Responder
	dispatcher *dispatch.Dispatcher
	guard      *ratelimit.Guard
	i18n       *i18n.Manager
	log        *slog.Logger
}

// Options configures the transport.
type Options struct {
	Token       string
	PollTimeout time.Duration
}

// New builds the bot and registers the update routes. The dispatcher is
// attached afterwards with SetDispatcher, since its handlers need the
// outbound sender this constructor creates.
func New(opts Options, guard *ratelimit.Guard, mgr *i18n.Manager, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:  opts.Token,
		Poller: &telebot.LongPoller{Timeout: opts.PollTimeout},
	})
	if err != nil {
		return nil, err
	}

	b := &Bot{
		tb:     tb,
		sender: responder.NewTelegram(tb, log),
		guard:  guard,
		i18n:   mgr,
		log:    log,
	}

	tb.Handle(telebot.OnText, b.route)
	tb.Handle(telebot.OnContact, b.route)
	tb.Handle(telebot.OnPhoto, b.route)
	tb.Handle(telebot.OnCallback, b.route)

	return b, nil
}

// Sender exposes the outbound transport for wiring.
func (b *Bot) Sender() responder.Responder {
	return b.sender
}

// SetDispatcher attaches the handler chain. Must be called before Start.
func (b *Bot) SetDispatcher(d *dispatch.Dispatcher) {
	b.dispatcher = d
}

// Start runs the poll loop until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.log.Info("stopping telegram poller")
		b.tb.Stop()
	}()

	b.log.Info("telegram poller started", "bot", b.tb.Me.Username)
	b.tb.Start()
}

// route is the single entry point for every update type.
func (b *Bot) route(c telebot.Context) error {
	u := update.Normalize(c.Update())
	if u == nil || !u.HasUser || b.dispatcher == nil {
		return nil
	}

	ctx := logger.WithCorrelationID(context.Background(), "")

	if seen, err := b.guard.SeenUpdate(ctx, int(u.UpdateID)); err == nil && seen {
		b.log.Debug("duplicate update dropped", "update_id", u.UpdateID)
		return b.ack(ctx, u, "")
	}

	if !u.IsCallback && !b.guard.MessageAllowed(ctx, u.UserID) {
		b.log.Debug("message flood dropped", "user_id", u.UserID)
		return nil
	}

	if u.IsCallback {
		if busy, err := b.guard.CallbackBusy(ctx, u.UserID); err == nil && busy {
			tr := b.i18n.Translator(u.Language)
			return b.ack(ctx, u, tr.T("errors.too_fast"))
		}
		defer b.guard.ReleaseCallback(ctx, u.UserID)

		// Ack first so the client spinner never outlives processing.
		if err := b.ack(ctx, u, ""); err != nil {
			b.log.Debug("callback ack failed", "callback_id", u.CallbackID, "error", err)
		}
	}

	b.dispatcher.Dispatch(ctx, u)
	return nil
}

func (b *Bot) ack(ctx context.Context, u *update.Context, text string) error {
	if !u.IsCallback || u.CallbackID == "" {
		return nil
	}
	return b.sender.AnswerCallback(ctx, u.CallbackID, text)
}

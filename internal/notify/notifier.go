// Package notify delivers out-of-band messages to users, e.g. "your bid was
// accepted". Delivery is best-effort: a user who blocked the bot must never
// fail the transaction that triggered the notice.
package notify

import (
	"context"
	"log/slog"

	"github.com/qsmarket/market-bot/internal/responder"
)

// Notifier sends fire-and-forget messages.
type Notifier struct {
	sender responder.Responder
	log    *slog.Logger
}

// New builds a Notifier.
func New(sender responder.Responder, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}

	return &Notifier{sender: sender, log: log}
}

// Send pushes a plain-text notice to the chat. Failures are logged and
// swallowed.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) {
	if _, err := n.sender.SendText(ctx, chatID, text); err != nil {
		n.log.Warn("notification dropped", "chat_id", chatID, "error", err)
	}
}

// Broadcast sends the same notice to every chat in the list, continuing past
// failures.
func (n *Notifier) Broadcast(ctx context.Context, chatIDs []int64, text string) {
	for _, id := range chatIDs {
		n.Send(ctx, id, text)
	}
}

// Package responder abstracts the outbound chat transport. Handlers and the
// choreographer depend on this interface, never on telebot directly.
package responder

import "context"

// Button is one inline keyboard button: a callback payload or an external URL.
type Button struct {
	Text string
	Data string
	URL  string
}

// Responder exposes the send/edit/delete/answer primitives of the chat
// transport. Every send returns the id of the new message; every edit or
// delete may fail (message gone or too old) and callers are expected to
// fall back to sending a new message.
type Responder interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendInline(ctx context.Context, chatID int64, text string, keyboard [][]Button) (int, error)
	SendReply(ctx context.Context, chatID int64, text string, keyboard [][]string) (int, error)

	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	EditInline(ctx context.Context, chatID int64, messageID int, text string, keyboard [][]Button) error

	// SilentRefreshReply updates the persistent reply keyboard by sending a
	// phantom message carrying it and deleting that message immediately.
	SilentRefreshReply(ctx context.Context, chatID int64, keyboard [][]string) error

	Delete(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error

	SendContactRequest(ctx context.Context, chatID int64, text, buttonLabel, cancelLabel string) (int, error)
	RemoveReplyKeyboard(ctx context.Context, chatID int64, text string) (int, error)
	// SilentRemoveReplyKeyboard removes the reply keyboard without leaving a
	// visible message, using the same phantom trick as SilentRefreshReply.
	SilentRemoveReplyKeyboard(ctx context.Context, chatID int64) error

	SendPhoto(ctx context.Context, chatID int64, fileID, caption string) (int, error)
}

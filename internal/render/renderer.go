// Package render implements the message-lifecycle choreography: given the
// keyboard mode of the bot's previous message and the mode of the screen
// about to be shown, it picks the edit / delete-and-resend / silent-refresh
// sequence that keeps the chat to a single durable bot message.
//
// Transition rules:
//
//	inline  → inline : edit text and keyboard in place
//	reply   → reply  : edit text in place, refresh the keyboard silently
//	reply   → inline : delete old message, send new inline message
//	inline  → reply  : delete old message, send plain text, silent-refresh keyboard
//
// The two keyboard types are mutually exclusive and only inline messages can
// be edited into carrying buttons, which is why every transition classifies
// both modes before touching the chat.
package render

import (
	"context"
	"errors"
	"log/slog"

	"github.com/qsmarket/market-bot/internal/msgstate"
	"github.com/qsmarket/market-bot/internal/responder"
)

// Screen is one renderable step: text plus at most one keyboard.
type Screen struct {
	Text   string
	Mode   msgstate.Mode
	Inline [][]responder.Button
	Reply  [][]string

	// ContactButton turns a reply screen into a contact request: the
	// primary button shares the user's phone number. ContactCancel, when
	// set, adds a plain cancel row beneath it.
	ContactButton string
	ContactCancel string
}

// InlineScreen builds an inline-keyboard screen.
func InlineScreen(text string, keyboard [][]responder.Button) Screen {
	return Screen{Text: text, Mode: msgstate.ModeInline, Inline: keyboard}
}

// ReplyScreen builds a reply-keyboard screen.
func ReplyScreen(text string, keyboard [][]string) Screen {
	return Screen{Text: text, Mode: msgstate.ModeReply, Reply: keyboard}
}

// ContactScreen builds a reply-keyboard screen whose primary button shares
// the user's phone number. cancelLabel may be empty.
func ContactScreen(text, buttonLabel, cancelLabel string) Screen {
	return Screen{Text: text, Mode: msgstate.ModeReply, ContactButton: buttonLabel, ContactCancel: cancelLabel}
}

// TextScreen builds a plain-text screen with no keyboard.
func TextScreen(text string) Screen {
	return Screen{Text: text, Mode: msgstate.ModeNone}
}

var operationRecorder = func(oldMode, newMode string) {}

// RegisterOperationRecorder lets the metrics package observe transitions.
func RegisterOperationRecorder(recorder func(oldMode, newMode string)) {
	if recorder == nil {
		operationRecorder = func(string, string) {}
		return
	}

	operationRecorder = recorder
}

// Renderer applies the transition rules above on top of a Responder and the
// per-user message tracker.
type Renderer struct {
	sender  responder.Responder
	tracker *msgstate.Tracker
	log     *slog.Logger
}

// New builds a Renderer.
func New(sender responder.Responder, tracker *msgstate.Tracker, log *slog.Logger) *Renderer {
	if log == nil {
		log = slog.Default()
	}

	return &Renderer{sender: sender, tracker: tracker, log: log}
}

// Show renders the screen for the user, transitioning away from whatever the
// previous bot message was. Edit failures fall back to send-new.
func (r *Renderer) Show(ctx context.Context, chatID, userID int64, s Screen) error {
	old, err := r.tracker.Get(ctx, userID)
	if err != nil && !errors.Is(err, msgstate.ErrNotFound) {
		return err
	}

	oldMode := msgstate.ModeNone
	oldID := 0
	editable := false
	if old != nil {
		oldMode = old.Mode
		oldID = old.MessageID
		editable = old.Editable
	}

	operationRecorder(string(oldMode), string(s.Mode))

	switch s.Mode {
	case msgstate.ModeInline:
		return r.showInline(ctx, chatID, userID, s, oldMode, oldID, editable)
	case msgstate.ModeReply:
		if s.ContactButton != "" {
			return r.showContact(ctx, chatID, userID, s, oldID)
		}
		return r.showReply(ctx, chatID, userID, s, oldMode, oldID, editable)
	default:
		return r.showText(ctx, chatID, userID, s, oldID)
	}
}

func (r *Renderer) showInline(ctx context.Context, chatID, userID int64, s Screen, oldMode msgstate.Mode, oldID int, editable bool) error {
	// Reply-keyboard messages must never be edited into carrying inline
	// buttons; replace them instead.
	if oldMode == msgstate.ModeReply && oldID != 0 {
		r.deleteQuiet(ctx, chatID, oldID)
		oldID = 0
	}

	if oldID != 0 && editable {
		if err := r.sender.EditInline(ctx, chatID, oldID, s.Text, s.Inline); err == nil {
			return r.track(ctx, userID, oldID, msgstate.ModeInline)
		}
		// Message too old or already gone: fall through to send-new.
		r.deleteQuiet(ctx, chatID, oldID)
	}

	id, err := r.sender.SendInline(ctx, chatID, s.Text, s.Inline)
	if err != nil {
		return err
	}
	return r.track(ctx, userID, id, msgstate.ModeInline)
}

func (r *Renderer) showReply(ctx context.Context, chatID, userID int64, s Screen, oldMode msgstate.Mode, oldID int, editable bool) error {
	if oldMode == msgstate.ModeReply && oldID != 0 && editable {
		if err := r.sender.EditText(ctx, chatID, oldID, s.Text); err == nil {
			// Text updated in place; the keyboard rides in on a phantom.
			if err := r.sender.SilentRefreshReply(ctx, chatID, s.Reply); err != nil {
				r.log.Warn("silent keyboard refresh failed", "chat_id", chatID, "error", err)
			}
			return r.track(ctx, userID, oldID, msgstate.ModeReply)
		}
		r.deleteQuiet(ctx, chatID, oldID)
		oldID = 0
	}

	if oldMode == msgstate.ModeInline && oldID != 0 {
		r.deleteQuiet(ctx, chatID, oldID)

		id, err := r.sender.SendText(ctx, chatID, s.Text)
		if err != nil {
			return err
		}
		if err := r.sender.SilentRefreshReply(ctx, chatID, s.Reply); err != nil {
			r.log.Warn("silent keyboard refresh failed", "chat_id", chatID, "error", err)
		}
		return r.track(ctx, userID, id, msgstate.ModeReply)
	}

	if oldID != 0 {
		r.deleteQuiet(ctx, chatID, oldID)
	}

	id, err := r.sender.SendReply(ctx, chatID, s.Text, s.Reply)
	if err != nil {
		return err
	}
	return r.track(ctx, userID, id, msgstate.ModeReply)
}

func (r *Renderer) showContact(ctx context.Context, chatID, userID int64, s Screen, oldID int) error {
	if oldID != 0 {
		r.deleteQuiet(ctx, chatID, oldID)
	}

	id, err := r.sender.SendContactRequest(ctx, chatID, s.Text, s.ContactButton, s.ContactCancel)
	if err != nil {
		return err
	}
	// A contact keyboard cannot be refreshed in place, so the message is
	// tracked as non-editable and the next screen replaces it.
	return r.tracker.Set(ctx, userID, msgstate.Record{
		MessageID: id,
		Mode:      msgstate.ModeReply,
		Editable:  false,
	})
}

func (r *Renderer) showText(ctx context.Context, chatID, userID int64, s Screen, oldID int) error {
	if oldID != 0 {
		r.deleteQuiet(ctx, chatID, oldID)
	}

	id, err := r.sender.SendText(ctx, chatID, s.Text)
	if err != nil {
		return err
	}
	return r.track(ctx, userID, id, msgstate.ModeNone)
}

// DeleteMessage removes an arbitrary message from the chat, best effort.
// Wizards use it to clean up user messages carrying sensitive input.
func (r *Renderer) DeleteMessage(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	r.deleteQuiet(ctx, chatID, messageID)
}

// Forget drops the tracked message without touching the chat. Used when a
// flow hands the visible message over to another surface (e.g. a completion
// notice that should stay in the log).
func (r *Renderer) Forget(ctx context.Context, userID int64) error {
	return r.tracker.Clear(ctx, userID)
}

// DeleteCurrent removes the tracked bot message from the chat, if any.
func (r *Renderer) DeleteCurrent(ctx context.Context, chatID, userID int64) {
	rec, err := r.tracker.Get(ctx, userID)
	if err != nil || rec == nil || rec.MessageID == 0 {
		return
	}
	r.deleteQuiet(ctx, chatID, rec.MessageID)
	_ = r.tracker.Clear(ctx, userID)
}

// RemoveReplyKeyboard silently strips the persistent keyboard, e.g. on cancel.
func (r *Renderer) RemoveReplyKeyboard(ctx context.Context, chatID int64) {
	if err := r.sender.SilentRemoveReplyKeyboard(ctx, chatID); err != nil {
		r.log.Warn("silent keyboard removal failed", "chat_id", chatID, "error", err)
	}
}

func (r *Renderer) track(ctx context.Context, userID int64, messageID int, mode msgstate.Mode) error {
	return r.tracker.Set(ctx, userID, msgstate.Record{
		MessageID: messageID,
		Mode:      mode,
		Editable:  true,
	})
}

func (r *Renderer) deleteQuiet(ctx context.Context, chatID int64, messageID int) {
	if err := r.sender.Delete(ctx, chatID, messageID); err != nil {
		r.log.Debug("failed to delete previous bot message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// Package respondertest provides an in-memory Responder for tests: every
// operation is recorded in order and sends hand out sequential message ids.
package respondertest

import (
	"context"
	"errors"
	"sync"

	"github.com/qsmarket/market-bot/internal/responder"
)

// Call is one recorded outbound operation.
type Call struct {
	Op        string
	ChatID    int64
	MessageID int
	Text      string
	Inline    [][]responder.Button
	Reply     [][]string
}

// Recorder implements responder.Responder in memory.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	nextID int

	// FailEdits makes every edit operation fail, exercising the
	// fall-back-to-send paths.
	FailEdits bool
	// FailSends makes every send operation fail.
	FailSends bool
}

var _ responder.Responder = (*Recorder)(nil)

// New builds a Recorder.
func New() *Recorder {
	return &Recorder{nextID: 1000}
}

// Calls returns a copy of everything recorded so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ops returns just the operation names, in order.
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	ops := make([]string, 0, len(calls))
	for _, c := range calls {
		ops = append(ops, c.Op)
	}
	return ops
}

// LastText returns the text of the most recent operation carrying text.
func (r *Recorder) LastText() string {
	calls := r.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Text != "" {
			return calls[i].Text
		}
	}
	return ""
}

// Reset clears the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(c Call) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSends {
		return 0, errors.New("send failed")
	}
	r.nextID++
	c.MessageID = r.nextID
	r.calls = append(r.calls, c)
	return r.nextID, nil
}

func (r *Recorder) edit(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEdits {
		return errors.New("message to edit not found")
	}
	r.calls = append(r.calls, c)
	return nil
}

func (r *Recorder) SendText(_ context.Context, chatID int64, text string) (int, error) {
	return r.record(Call{Op: "send_text", ChatID: chatID, Text: text})
}

func (r *Recorder) SendInline(_ context.Context, chatID int64, text string, keyboard [][]responder.Button) (int, error) {
	return r.record(Call{Op: "send_inline", ChatID: chatID, Text: text, Inline: keyboard})
}

func (r *Recorder) SendReply(_ context.Context, chatID int64, text string, keyboard [][]string) (int, error) {
	return r.record(Call{Op: "send_reply", ChatID: chatID, Text: text, Reply: keyboard})
}

func (r *Recorder) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	return r.edit(Call{Op: "edit_text", ChatID: chatID, MessageID: messageID, Text: text})
}

func (r *Recorder) EditInline(_ context.Context, chatID int64, messageID int, text string, keyboard [][]responder.Button) error {
	return r.edit(Call{Op: "edit_inline", ChatID: chatID, MessageID: messageID, Text: text, Inline: keyboard})
}

func (r *Recorder) SilentRefreshReply(_ context.Context, chatID int64, keyboard [][]string) error {
	_, err := r.record(Call{Op: "silent_refresh", ChatID: chatID, Reply: keyboard})
	return err
}

func (r *Recorder) Delete(_ context.Context, chatID int64, messageID int) error {
	return r.edit(Call{Op: "delete", ChatID: chatID, MessageID: messageID})
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string) error {
	_, _ = r.record(Call{Op: "answer_callback", Text: text})
	return nil
}

func (r *Recorder) SendContactRequest(_ context.Context, chatID int64, text, _, _ string) (int, error) {
	return r.record(Call{Op: "send_contact_request", ChatID: chatID, Text: text})
}

func (r *Recorder) RemoveReplyKeyboard(_ context.Context, chatID int64, text string) (int, error) {
	return r.record(Call{Op: "remove_reply_keyboard", ChatID: chatID, Text: text})
}

func (r *Recorder) SilentRemoveReplyKeyboard(_ context.Context, chatID int64) error {
	_, err := r.record(Call{Op: "silent_remove", ChatID: chatID})
	return err
}

func (r *Recorder) SendPhoto(_ context.Context, chatID int64, fileID, caption string) (int, error) {
	return r.record(Call{Op: "send_photo", ChatID: chatID, Text: caption})
}
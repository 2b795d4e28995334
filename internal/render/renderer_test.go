package render

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsmarket/market-bot/internal/msgstate"
	"github.com/qsmarket/market-bot/internal/responder"
)

type call struct {
	op        string
	messageID int
	text      string
}

// fakeResponder records every outbound operation in order and hands out
// sequential message ids for sends.
type fakeResponder struct {
	calls    []call
	nextID   int
	failEdit bool
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{nextID: 100}
}

func (f *fakeResponder) send(op, text string) (int, error) {
	f.nextID++
	f.calls = append(f.calls, call{op: op, messageID: f.nextID, text: text})
	return f.nextID, nil
}

func (f *fakeResponder) SendText(_ context.Context, _ int64, text string) (int, error) {
	return f.send("send_text", text)
}

func (f *fakeResponder) SendInline(_ context.Context, _ int64, text string, _ [][]responder.Button) (int, error) {
	return f.send("send_inline", text)
}

func (f *fakeResponder) SendReply(_ context.Context, _ int64, text string, _ [][]string) (int, error) {
	return f.send("send_reply", text)
}

func (f *fakeResponder) EditText(_ context.Context, _ int64, messageID int, text string) error {
	if f.failEdit {
		return errors.New("message to edit not found")
	}
	f.calls = append(f.calls, call{op: "edit_text", messageID: messageID, text: text})
	return nil
}

func (f *fakeResponder) EditInline(_ context.Context, _ int64, messageID int, text string, _ [][]responder.Button) error {
	if f.failEdit {
		return errors.New("message to edit not found")
	}
	f.calls = append(f.calls, call{op: "edit_inline", messageID: messageID, text: text})
	return nil
}

func (f *fakeResponder) SilentRefreshReply(_ context.Context, _ int64, _ [][]string) error {
	f.calls = append(f.calls, call{op: "silent_refresh"})
	return nil
}

func (f *fakeResponder) Delete(_ context.Context, _ int64, messageID int) error {
	f.calls = append(f.calls, call{op: "delete", messageID: messageID})
	return nil
}

func (f *fakeResponder) AnswerCallback(_ context.Context, _, _ string) error { return nil }

func (f *fakeResponder) SendContactRequest(_ context.Context, _ int64, text, _, _ string) (int, error) {
	return f.send("send_contact_request", text)
}

func (f *fakeResponder) RemoveReplyKeyboard(_ context.Context, _ int64, text string) (int, error) {
	return f.send("remove_reply_keyboard", text)
}

func (f *fakeResponder) SilentRemoveReplyKeyboard(_ context.Context, _ int64) error {
	f.calls = append(f.calls, call{op: "silent_remove"})
	return nil
}

func (f *fakeResponder) SendPhoto(_ context.Context, _ int64, _, caption string) (int, error) {
	return f.send("send_photo", caption)
}

func (f *fakeResponder) ops() []string {
	ops := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ops = append(ops, c.op)
	}
	return ops
}

func setupRenderer(t *testing.T) (*Renderer, *fakeResponder, *msgstate.Tracker) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tracker := msgstate.NewTracker(client, nil, time.Hour)
	sender := newFakeResponder()
	return New(sender, tracker, nil), sender, tracker
}

func seed(t *testing.T, tracker *msgstate.Tracker, mode msgstate.Mode, messageID int) {
	t.Helper()
	require.NoError(t, tracker.Set(context.Background(), 42, msgstate.Record{
		MessageID: messageID,
		Mode:      mode,
		Editable:  true,
	}))
}

func TestShowTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		oldMode  msgstate.Mode
		screen   Screen
		wantOps  []string
		wantMode msgstate.Mode
	}{
		{
			name:     "inline to inline edits in place",
			oldMode:  msgstate.ModeInline,
			screen:   InlineScreen("pick one", nil),
			wantOps:  []string{"edit_inline"},
			wantMode: msgstate.ModeInline,
		},
		{
			name:     "reply to reply edits text and refreshes keyboard",
			oldMode:  msgstate.ModeReply,
			screen:   ReplyScreen("next step", [][]string{{"Back", "Cancel"}}),
			wantOps:  []string{"edit_text", "silent_refresh"},
			wantMode: msgstate.ModeReply,
		},
		{
			name:     "reply to inline deletes and resends",
			oldMode:  msgstate.ModeReply,
			screen:   InlineScreen("pick one", nil),
			wantOps:  []string{"delete", "send_inline"},
			wantMode: msgstate.ModeInline,
		},
		{
			name:     "inline to reply deletes then sends text plus phantom",
			oldMode:  msgstate.ModeInline,
			screen:   ReplyScreen("next step", [][]string{{"Back"}}),
			wantOps:  []string{"delete", "send_text", "silent_refresh"},
			wantMode: msgstate.ModeReply,
		},
		{
			name:     "fresh chat sends inline directly",
			oldMode:  msgstate.ModeNone,
			screen:   InlineScreen("pick one", nil),
			wantOps:  []string{"send_inline"},
			wantMode: msgstate.ModeInline,
		},
		{
			name:     "plain screen replaces tracked message",
			oldMode:  msgstate.ModeInline,
			screen:   TextScreen("done"),
			wantOps:  []string{"delete", "send_text"},
			wantMode: msgstate.ModeNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, sender, tracker := setupRenderer(t)
			if tt.oldMode != msgstate.ModeNone {
				seed(t, tracker, tt.oldMode, 77)
			}

			require.NoError(t, r.Show(ctx, 42, 42, tt.screen))
			assert.Equal(t, tt.wantOps, sender.ops())

			rec, err := tracker.Get(ctx, 42)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, rec.Mode)
		})
	}
}

func TestShowInlineEditFailureFallsBackToSend(t *testing.T) {
	ctx := context.Background()
	r, sender, tracker := setupRenderer(t)
	seed(t, tracker, msgstate.ModeInline, 77)
	sender.failEdit = true

	require.NoError(t, r.Show(ctx, 42, 42, InlineScreen("pick one", nil)))
	assert.Equal(t, []string{"delete", "send_inline"}, sender.ops())

	rec, err := tracker.Get(ctx, 42)
	require.NoError(t, err)
	assert.NotEqual(t, 77, rec.MessageID)
}

func TestShowReplyEditFailureFallsBackToSend(t *testing.T) {
	ctx := context.Background()
	r, sender, tracker := setupRenderer(t)
	seed(t, tracker, msgstate.ModeReply, 77)
	sender.failEdit = true

	require.NoError(t, r.Show(ctx, 42, 42, ReplyScreen("next", [][]string{{"Back"}})))
	assert.Equal(t, []string{"delete", "send_reply"}, sender.ops())
}

func TestShowSurvivesMissingOldMessage(t *testing.T) {
	// Tracked message was already deleted from the chat by the user; the
	// delete fails but rendering proceeds.
	ctx := context.Background()
	r, sender, tracker := setupRenderer(t)
	seed(t, tracker, msgstate.ModeReply, 77)

	require.NoError(t, r.Show(ctx, 42, 42, InlineScreen("pick one", nil)))
	assert.Contains(t, sender.ops(), "send_inline")

	rec, err := tracker.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, msgstate.ModeInline, rec.Mode)
}

func TestShowContactReplacesAndTracksNonEditable(t *testing.T) {
	ctx := context.Background()
	r, sender, tracker := setupRenderer(t)
	seed(t, tracker, msgstate.ModeInline, 77)

	require.NoError(t, r.Show(ctx, 42, 42, ContactScreen("share your number", "Share", "Cancel")))
	assert.Equal(t, []string{"delete", "send_contact_request"}, sender.ops())

	rec, err := tracker.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, msgstate.ModeReply, rec.Mode)
	assert.False(t, rec.Editable)

	// The follow-up prompt must not try to edit the contact message.
	sender.calls = nil
	require.NoError(t, r.Show(ctx, 42, 42, ReplyScreen("enter the code", nil)))
	assert.Equal(t, []string{"delete", "send_reply"}, sender.ops())
}

func TestDeleteCurrent(t *testing.T) {
	ctx := context.Background()
	r, sender, tracker := setupRenderer(t)
	seed(t, tracker, msgstate.ModeInline, 77)

	r.DeleteCurrent(ctx, 42, 42)
	assert.Equal(t, []string{"delete"}, sender.ops())

	_, err := tracker.Get(ctx, 42)
	assert.ErrorIs(t, err, msgstate.ErrNotFound)
}

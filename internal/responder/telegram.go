package responder

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// Telegram implements Responder over a telebot.Bot instance.
type Telegram struct {
	bot *telebot.Bot
	log *slog.Logger
}

// NewTelegram builds a telebot-backed Responder.
func NewTelegram(bot *telebot.Bot, log *slog.Logger) *Telegram {
	if log == nil {
		log = slog.Default()
	}

	return &Telegram{bot: bot, log: log}
}

// SendText sends plain text and returns the new message id.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := t.bot.Send(chat(chatID), text, telebot.ModeHTML)
	if err != nil {
		t.log.Error("failed to send message", "chat_id", chatID, "error", err)
		return 0, err
	}
	return msg.ID, nil
}

// SendInline sends text with an inline keyboard.
func (t *Telegram) SendInline(ctx context.Context, chatID int64, text string, keyboard [][]Button) (int, error) {
	msg, err := t.bot.Send(chat(chatID), text, telebot.ModeHTML, inlineMarkup(keyboard))
	if err != nil {
		t.log.Error("failed to send inline message", "chat_id", chatID, "error", err)
		return 0, err
	}
	return msg.ID, nil
}

// SendReply sends text with a persistent reply keyboard.
func (t *Telegram) SendReply(ctx context.Context, chatID int64, text string, keyboard [][]string) (int, error) {
	msg, err := t.bot.Send(chat(chatID), text, telebot.ModeHTML, replyMarkup(keyboard))
	if err != nil {
		t.log.Error("failed to send reply-keyboard message", "chat_id", chatID, "error", err)
		return 0, err
	}
	return msg.ID, nil
}

// EditText edits a message's text, leaving its keyboard untouched.
func (t *Telegram) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := t.bot.Edit(editable(chatID, messageID), text, telebot.ModeHTML)
	return err
}

// EditInline edits a message's text and inline keyboard in place.
func (t *Telegram) EditInline(ctx context.Context, chatID int64, messageID int, text string, keyboard [][]Button) error {
	_, err := t.bot.Edit(editable(chatID, messageID), text, telebot.ModeHTML, inlineMarkup(keyboard))
	return err
}

// SilentRefreshReply sends a phantom message carrying the new reply keyboard
// and deletes it immediately. The keyboard persists in the client; the chat
// log stays clean.
func (t *Telegram) SilentRefreshReply(ctx context.Context, chatID int64, keyboard [][]string) error {
	msg, err := t.bot.Send(chat(chatID), "⁣", replyMarkup(keyboard))
	if err != nil {
		t.log.Error("failed to send phantom keyboard message", "chat_id", chatID, "error", err)
		return err
	}

	if err := t.bot.Delete(msg); err != nil {
		t.log.Warn("failed to delete phantom keyboard message", "chat_id", chatID, "error", err)
	}
	return nil
}

// Delete removes a message from the chat.
func (t *Telegram) Delete(ctx context.Context, chatID int64, messageID int) error {
	return t.bot.Delete(editable(chatID, messageID))
}

// AnswerCallback acknowledges a callback query so the client removes the
// loading spinner.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return t.bot.Respond(&telebot.Callback{ID: callbackID}, &telebot.CallbackResponse{Text: text})
}

// SendContactRequest sends a reply keyboard with a share-contact button.
func (t *Telegram) SendContactRequest(ctx context.Context, chatID int64, text, buttonLabel, cancelLabel string) (int, error) {
	markup := &telebot.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	rows := []telebot.Row{markup.Row(markup.Contact(buttonLabel))}
	if cancelLabel != "" {
		rows = append(rows, markup.Row(markup.Text(cancelLabel)))
	}
	markup.Reply(rows...)

	msg, err := t.bot.Send(chat(chatID), text, telebot.ModeHTML, markup)
	if err != nil {
		t.log.Error("failed to send contact request", "chat_id", chatID, "error", err)
		return 0, err
	}
	return msg.ID, nil
}

// RemoveReplyKeyboard sends text with a keyboard-remove marker.
func (t *Telegram) RemoveReplyKeyboard(ctx context.Context, chatID int64, text string) (int, error) {
	markup := &telebot.ReplyMarkup{RemoveKeyboard: true}
	msg, err := t.bot.Send(chat(chatID), text, telebot.ModeHTML, markup)
	if err != nil {
		t.log.Error("failed to remove reply keyboard", "chat_id", chatID, "error", err)
		return 0, err
	}
	return msg.ID, nil
}

// SilentRemoveReplyKeyboard removes the reply keyboard via the phantom trick.
func (t *Telegram) SilentRemoveReplyKeyboard(ctx context.Context, chatID int64) error {
	markup := &telebot.ReplyMarkup{RemoveKeyboard: true}
	msg, err := t.bot.Send(chat(chatID), "⁣", markup)
	if err != nil {
		t.log.Error("failed to send phantom remove-keyboard message", "chat_id", chatID, "error", err)
		return err
	}

	if err := t.bot.Delete(msg); err != nil {
		t.log.Warn("failed to delete phantom remove-keyboard message", "chat_id", chatID, "error", err)
	}
	return nil
}

// SendPhoto sends a photo by file id with an optional caption.
func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, fileID, caption string) (int, error) {
	photo := &telebot.Photo{File: telebot.File{FileID: fileID}, Caption: caption}
	msg, err := t.bot.Send(chat(chatID), photo)
	if err != nil {
		t.log.Error("failed to send photo", "chat_id", chatID, "error", err)
		return 0, err
	}
	return msg.ID, nil
}

func chat(chatID int64) *telebot.Chat {
	return &telebot.Chat{ID: chatID}
}

func editable(chatID int64, messageID int) telebot.Editable {
	return &telebot.Message{ID: messageID, Chat: chat(chatID)}
}

func inlineMarkup(keyboard [][]Button) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	rows := make([][]telebot.InlineButton, 0, len(keyboard))
	for _, row := range keyboard {
		btns := make([]telebot.InlineButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, telebot.InlineButton{Text: b.Text, Data: b.Data, URL: b.URL})
		}
		rows = append(rows, btns)
	}
	markup.InlineKeyboard = rows
	return markup
}

func replyMarkup(keyboard [][]string) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}
	rows := make([]telebot.Row, 0, len(keyboard))
	for _, row := range keyboard {
		btns := make([]telebot.Btn, 0, len(row))
		for _, label := range row {
			btns = append(btns, markup.Text(label))
		}
		rows = append(rows, markup.Row(btns...))
	}
	markup.Reply(rows...)
	return markup
}

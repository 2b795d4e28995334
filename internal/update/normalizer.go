package update

import (
	telebot "gopkg.in/telebot.v3"
)

// Normalize converts a raw telebot update into a Context. It never fails:
// missing or malformed fields produce zero values, and updates that carry
// neither a message nor a callback query yield nil.
func Normalize(u telebot.Update) *Context {
	switch {
	case u.Message != nil:
		return fromMessage(int64(u.ID), u.Message)
	case u.Callback != nil:
		return fromCallback(int64(u.ID), u.Callback)
	default:
		return nil
	}
}

func fromMessage(updateID int64, m *telebot.Message) *Context {
	ctx := &Context{
		UpdateID:  updateID,
		MessageID: m.ID,
		Text:      m.Text,
	}

	if m.Chat != nil {
		ctx.ChatID = m.Chat.ID
	}

	if m.Sender != nil {
		ctx.UserID = m.Sender.ID
		ctx.HasUser = true
		ctx.Username = m.Sender.Username
		ctx.FirstName = m.Sender.FirstName
		ctx.LastName = m.Sender.LastName
		ctx.Language = m.Sender.LanguageCode
	}

	if m.Contact != nil {
		ctx.ContactPhone = m.Contact.PhoneNumber
	}

	// Largest photo size is last.
	if m.Photo != nil {
		ctx.PhotoFileID = m.Photo.FileID
	}

	return ctx
}

func fromCallback(updateID int64, cb *telebot.Callback) *Context {
	ctx := &Context{
		UpdateID:   updateID,
		Text:       cb.Data,
		IsCallback: true,
		CallbackID: cb.ID,
	}

	if cb.Sender != nil {
		ctx.UserID = cb.Sender.ID
		ctx.HasUser = true
		ctx.Username = cb.Sender.Username
		ctx.FirstName = cb.Sender.FirstName
		ctx.LastName = cb.Sender.LastName
		ctx.Language = cb.Sender.LanguageCode
		ctx.ChatID = cb.Sender.ID
	}

	if cb.Message != nil {
		ctx.CallbackMessageID = cb.Message.ID
		if cb.Message.Chat != nil {
			ctx.ChatID = cb.Message.Chat.ID
		}
	}

	return ctx
}

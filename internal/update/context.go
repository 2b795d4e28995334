// Package update normalizes raw Telegram updates into a transport-agnostic
// context consumed by the dispatcher and all feature handlers.
package update

import "strings"

// Context is the canonical view of one inbound update. It is built once per
// update and never mutated afterwards.
type Context struct {
	UpdateID  int64
	ChatID    int64
	UserID    int64
	HasUser   bool
	Text      string
	Username  string
	FirstName string
	LastName  string

	// Language is the Telegram client language code, e.g. "fa".
	Language string

	// MessageID is the id of the user's incoming message, used for cleanup.
	MessageID int

	IsCallback        bool
	CallbackID        string
	CallbackMessageID int

	ContactPhone string
	PhotoFileID  string
}

// Command returns the lowercased command name when Text is a bot command,
// e.g. "/start abc" -> "start". Empty string otherwise.
func (c *Context) Command() string {
	text := strings.TrimSpace(c.Text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}

	return strings.ToLower(strings.TrimPrefix(fields[0], "/"))
}

// CommandArgs returns everything after the command token, trimmed.
func (c *Context) CommandArgs() string {
	text := strings.TrimSpace(c.Text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	idx := strings.IndexAny(text, " \t")
	if idx < 0 {
		return ""
	}

	return strings.TrimSpace(text[idx+1:])
}

// HasContact reports whether the update carries a shared contact.
func (c *Context) HasContact() bool {
	return c.ContactPhone != ""
}

// HasPhoto reports whether the update carries a photo.
func (c *Context) HasPhoto() bool {
	return c.PhotoFileID != ""
}

// Preview returns a short, log-safe description of the update. Free text is
// truncated so PII-heavy wizard input never lands in logs verbatim.
func (c *Context) Preview() string {
	if c.IsCallback {
		return "callback:" + truncate(c.Text, 48)
	}
	if cmd := c.Command(); cmd != "" {
		return "command:/" + cmd
	}
	if c.HasContact() {
		return "contact"
	}
	if c.HasPhoto() {
		return "photo"
	}
	return "text:" + truncate(c.Text, 16)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/update"
)

const (
	langPrefix        = "lang:"
	cleanChatCallback = "cleanchat:toggle"
)

// Preferences serves the settings-stage callbacks: interface language and
// clean-chat mode.
type Preferences struct {
	users    prefsUserStore
	renderer *render.Renderer
	i18n     *i18n.Manager
	log      *slog.Logger
}

type prefsUserStore interface {
	UserStore
	SetLanguage(ctx context.Context, telegramID int64, language string) error
	SetCleanChatMode(ctx context.Context, telegramID int64, enabled bool) error
}

// NewPreferences builds the preferences handler.
func NewPreferences(users prefsUserStore, renderer *render.Renderer, mgr *i18n.Manager, log *slog.Logger) *Preferences {
	if log == nil {
		log = slog.Default()
	}

	return &Preferences{users: users, renderer: renderer, i18n: mgr, log: log}
}

func (p *Preferences) Name() string { return "preferences" }

func (p *Preferences) CanHandle(_ context.Context, u *update.Context) bool {
	if !u.IsCallback {
		return false
	}
	return strings.HasPrefix(u.Text, langPrefix) || u.Text == cleanChatCallback
}

func (p *Preferences) Handle(ctx context.Context, u *update.Context) (bool, error) {
	if strings.HasPrefix(u.Text, langPrefix) {
		return true, p.setLanguage(ctx, u, strings.TrimPrefix(u.Text, langPrefix))
	}
	return true, p.toggleCleanChat(ctx, u)
}

func (p *Preferences) setLanguage(ctx context.Context, u *update.Context, lang string) error {
	if lang != i18n.LangFa && lang != i18n.LangEn {
		return nil
	}

	if err := p.users.SetLanguage(ctx, u.UserID, lang); err != nil {
		return err
	}

	tr := p.i18n.Translator(lang)
	return p.renderer.Show(ctx, u.ChatID, u.UserID, render.TextScreen(tr.T("prefs.language_set")))
}

func (p *Preferences) toggleCleanChat(ctx context.Context, u *update.Context) error {
	user, err := p.users.ByTelegramID(ctx, u.UserID)
	if err != nil {
		return err
	}

	enabled := !user.CleanChatMode
	if err := p.users.SetCleanChatMode(ctx, u.UserID, enabled); err != nil {
		return err
	}

	tr := p.i18n.Translator(user.Language)
	key := "prefs.clean_chat_off"
	if enabled {
		key = "prefs.clean_chat_on"
	}
	return p.renderer.Show(ctx, u.ChatID, u.UserID, render.TextScreen(tr.T(key)))
}

package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/stage"
	"github.com/qsmarket/market-bot/internal/update"
)

// HomeStageKey is the root of the stage tree.
const HomeStageKey = "home"

// UserStore is the slice of the user repository the navigator needs.
type UserStore interface {
	Upsert(ctx context.Context, telegramID int64, firstName, lastName, username string) (*domain.User, error)
	ByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
}

// StageNavigator serves /start and every stage: callback by rendering the
// requested node of the stage tree.
type StageNavigator struct {
	stages   *stage.Service
	renderer *render.Renderer
	users    UserStore
	i18n     *i18n.Manager
	log      *slog.Logger
}

// NewStageNavigator builds the navigation handler.
func NewStageNavigator(stages *stage.Service, renderer *render.Renderer, users UserStore, mgr *i18n.Manager, log *slog.Logger) *StageNavigator {
	if log == nil {
		log = slog.Default()
	}

	return &StageNavigator{stages: stages, renderer: renderer, users: users, i18n: mgr, log: log}
}

func (n *StageNavigator) Name() string { return "stage_nav" }

func (n *StageNavigator) CanHandle(_ context.Context, u *update.Context) bool {
	if u.Command() == "start" {
		return true
	}
	return u.IsCallback && strings.HasPrefix(u.Text, stage.CallbackPrefix)
}

func (n *StageNavigator) Handle(ctx context.Context, u *update.Context) (bool, error) {
	key := HomeStageKey
	if u.IsCallback {
		key = stage.KeyFromCallback(u.Text)
	}

	tr := n.translator(ctx, u)

	if u.Command() == "start" {
		// First contact registers the account.
		if _, err := n.users.Upsert(ctx, u.UserID, u.FirstName, u.LastName, u.Username); err != nil {
			return true, err
		}
	}

	screen, err := n.stages.Render(ctx, u.UserID, tr, key)
	if err != nil {
		return true, err
	}
	return true, n.renderer.Show(ctx, u.ChatID, u.UserID, screen)
}

// ShowHome renders the root stage; used by wizards after cancel.
func (n *StageNavigator) ShowHome(ctx context.Context, chatID, userID int64, tr i18n.Translator) error {
	screen, err := n.stages.Render(ctx, userID, tr, HomeStageKey)
	if err != nil {
		return err
	}
	return n.renderer.Show(ctx, chatID, userID, screen)
}

// translator resolves the user's stored language, falling back to the
// client language carried on the update.
func (n *StageNavigator) translator(ctx context.Context, u *update.Context) i18n.Translator {
	lang := u.Language
	if user, err := n.users.ByTelegramID(ctx, u.UserID); err == nil && user.Language != "" {
		lang = user.Language
	}
	return n.i18n.Translator(lang)
}

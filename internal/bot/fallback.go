package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/stage"
	"github.com/qsmarket/market-bot/internal/update"
)

// Fallback answers updates no handler claimed. Reply-keyboard taps arrive as
// plain text carrying only the button's caption, so free text is first
// matched against the stage tree's labels before it counts as unknown.
type Fallback struct {
	renderer *render.Renderer
	stages   *stage.Service
	i18n     *i18n.Manager
	log      *slog.Logger
}

// NewFallback builds the fallback handler.
func NewFallback(renderer *render.Renderer, stages *stage.Service, mgr *i18n.Manager, log *slog.Logger) *Fallback {
	if log == nil {
		log = slog.Default()
	}

	return &Fallback{renderer: renderer, stages: stages, i18n: mgr, log: log}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) CanHandle(context.Context, *update.Context) bool { return true }

func (f *Fallback) Handle(ctx context.Context, u *update.Context) (bool, error) {
	f.log.Debug("unclaimed update", "user_id", u.UserID, "update", u.Preview())

	// Stale callbacks were already acked by the transport; re-rendering
	// anything for them would fight the current screen.
	if u.IsCallback {
		return true, nil
	}

	tr := f.i18n.Translator(u.Language)

	if label := strings.TrimSpace(u.Text); label != "" && u.Command() == "" && f.stages != nil {
		screen, ok, err := f.stages.ResolveLabel(ctx, u.UserID, tr, label)
		if err != nil {
			return true, err
		}
		if ok {
			return true, f.renderer.Show(ctx, u.ChatID, u.UserID, screen)
		}
	}

	return true, f.renderer.Show(ctx, u.ChatID, u.UserID, render.TextScreen(tr.T("errors.unknown_input")))
}

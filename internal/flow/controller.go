// Package flow provides the shared wizard machinery. A wizard is a handler
// that walks a user through namespaced steps; this package owns the
// lifecycle every wizard repeats: start (clear + seed + first step), advance,
// back, cancel, and the typed flow-data bag.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/state"
)

// dataKey is the single flow-data slot a wizard's typed struct marshals
// into. One key per wizard means no stale keys can leak between wizards.
const dataKey = "data"

// Control labels recognized by every wizard.
const (
	CallbackCancel = "flow:cancel"
	CallbackBack   = "flow:back"
)

// Controller bundles the collaborators every wizard needs.
type Controller struct {
	states   state.Store
	renderer *render.Renderer
	i18n     *i18n.Manager
	log      *slog.Logger

	// homeStage is the neutral landing screen shown after cancel.
	homeStage HomeRenderer
}

// HomeRenderer renders the neutral landing screen. Satisfied by the stage
// service via a small adapter in the bot wiring.
type HomeRenderer interface {
	ShowHome(ctx context.Context, chatID, userID int64, tr i18n.Translator) error
}

// NewController builds the shared wizard controller.
func NewController(states state.Store, renderer *render.Renderer, mgr *i18n.Manager, home HomeRenderer, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}

	return &Controller{
		states:    states,
		renderer:  renderer,
		i18n:      mgr,
		log:       log,
		homeStage: home,
	}
}

// Translator resolves the translator for a user's language.
func (c *Controller) Translator(lang string) i18n.Translator {
	return c.i18n.Translator(lang)
}

// Renderer exposes the choreographer to wizards.
func (c *Controller) Renderer() *render.Renderer {
	return c.renderer
}

// Start abandons whatever wizard was active and enters the first step.
// Flow data is wiped before seeding so nothing leaks from a previous wizard.
func (c *Controller) Start(ctx context.Context, userID int64, first state.Step, seed any) error {
	if err := c.states.Clear(ctx, userID); err != nil {
		return err
	}
	if seed != nil {
		if err := c.SaveData(ctx, userID, seed); err != nil {
			return err
		}
	}
	return c.states.SetStep(ctx, userID, first)
}

// Advance moves the user to the next step.
func (c *Controller) Advance(ctx context.Context, userID int64, next state.Step) error {
	return c.states.SetStep(ctx, userID, next)
}

// Step returns the user's current step, or "" when no wizard is active.
func (c *Controller) Step(ctx context.Context, userID int64) state.Step {
	step, err := c.states.GetStep(ctx, userID)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			c.log.Error("failed to read conversation step", "user_id", userID, "error", err)
		}
		return ""
	}
	return step
}

// SaveData marshals the wizard's typed flow data into the session.
func (c *Controller) SaveData(ctx context.Context, userID int64, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.states.SetFlowData(ctx, userID, dataKey, string(raw))
}

// LoadData unmarshals the wizard's typed flow data. A missing bag leaves the
// target untouched so zero values act as defaults.
func (c *Controller) LoadData(ctx context.Context, userID int64, target any) error {
	raw, err := c.states.GetFlowData(ctx, userID, dataKey)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}

// Mutate loads the typed data, applies fn, and saves it back.
func (c *Controller) Mutate(ctx context.Context, userID int64, target any, fn func()) error {
	if err := c.LoadData(ctx, userID, target); err != nil {
		return err
	}
	fn()
	return c.SaveData(ctx, userID, target)
}

// Finish clears the session after a successful confirm.
func (c *Controller) Finish(ctx context.Context, userID int64) error {
	return c.states.Clear(ctx, userID)
}

// Cancel aborts the wizard from any step: session cleared, reply keyboard
// removed, neutral landing screen rendered.
func (c *Controller) Cancel(ctx context.Context, chatID, userID int64, tr i18n.Translator) error {
	if err := c.states.Clear(ctx, userID); err != nil {
		return err
	}

	c.renderer.RemoveReplyKeyboard(ctx, chatID)

	if c.homeStage != nil {
		if err := c.homeStage.ShowHome(ctx, chatID, userID, tr); err != nil {
			c.log.Error("failed to render landing screen after cancel", "user_id", userID, "error", err)
			return c.renderer.Show(ctx, chatID, userID, render.TextScreen(tr.T("flow.cancelled")))
		}
		return nil
	}
	return c.renderer.Show(ctx, chatID, userID, render.TextScreen(tr.T("flow.cancelled")))
}

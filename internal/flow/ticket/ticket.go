// Package ticket implements the support-ticket wizard: subject, body,
// preview, idempotent confirm. The wizard shape (two text inputs and a
// confirmation) is reused by sibling flows through Config, so a new
// compose-style wizard is one instantiation away.
package ticket

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/flow"
	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/idempotency"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/responder"
	"github.com/qsmarket/market-bot/internal/state"
	"github.com/qsmarket/market-bot/internal/update"
)

// Data is the wizard's typed flow data.
type Data struct {
	Subject  string `json:"subject,omitempty"`
	Body     string `json:"body,omitempty"`
	Language string `json:"lang,omitempty"`
}

// Submit persists the composed entry and returns its identifier.
type Submit func(ctx context.Context, telegramID int64, subject, body string) (int64, error)

// Config parametrizes one compose wizard instance.
type Config struct {
	// Name doubles as the idempotency scope and the handler name.
	Name          string
	StartCommand  string
	StartCallback string

	// Catalog keys for the three prompts and the closing notice.
	PromptSubject string
	PromptBody    string
	Preview       string
	Submitted     string

	Submit Submit
}

// TicketStore is the slice of the ticket repository this wizard needs.
type TicketStore interface {
	CreateTicket(ctx context.Context, telegramID int64, subject, body string) (*domain.Ticket, error)
}

// Handler drives a compose wizard.
type Handler struct {
	ctrl *flow.Controller
	cfg  Config
	idem *idempotency.Manager
	log  *slog.Logger

	stepSubject state.Step
	stepBody    state.Step
	stepPreview state.Step
	confirm     string
	prefix      string
}

// New builds the support-ticket wizard.
func New(ctrl *flow.Controller, tickets TicketStore, idem *idempotency.Manager, log *slog.Logger) *Handler {
	return NewCompose(ctrl, Config{
		Name:          "ticket",
		StartCommand:  "ticket",
		StartCallback: "ticket:start",
		PromptSubject: "ticket.prompt_subject",
		PromptBody:    "ticket.prompt_body",
		Preview:       "ticket.preview",
		Submitted:     "ticket.submitted",
		Submit: func(ctx context.Context, telegramID int64, subject, body string) (int64, error) {
			ticket, err := tickets.CreateTicket(ctx, telegramID, subject, body)
			if err != nil {
				return 0, err
			}
			return ticket.ID, nil
		},
	}, idem, log)
}

// NewCompose builds a wizard from an arbitrary Config.
func NewCompose(ctrl *flow.Controller, cfg Config, idem *idempotency.Manager, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	prefix := cfg.Name + "_"
	return &Handler{
		ctrl:        ctrl,
		cfg:         cfg,
		idem:        idem,
		log:         log,
		stepSubject: state.Step(prefix + "subject"),
		stepBody:    state.Step(prefix + "body"),
		stepPreview: state.Step(prefix + "preview"),
		confirm:     cfg.Name + ":confirm",
		prefix:      prefix,
	}
}

func (h *Handler) Name() string { return h.cfg.Name }

// StepSubject exposes the first step for tests and dispatch diagnostics.
func (h *Handler) StepSubject() state.Step { return h.stepSubject }

// StepBody exposes the second step.
func (h *Handler) StepBody() state.Step { return h.stepBody }

// StepPreview exposes the final step.
func (h *Handler) StepPreview() state.Step { return h.stepPreview }

func (h *Handler) CanHandle(ctx context.Context, u *update.Context) bool {
	if u.Command() == h.cfg.StartCommand || (u.IsCallback && u.Text == h.cfg.StartCallback) {
		return true
	}
	return h.ctrl.Step(ctx, u.UserID).HasPrefix(h.prefix)
}

func (h *Handler) Handle(ctx context.Context, u *update.Context) (bool, error) {
	var data Data
	if err := h.ctrl.LoadData(ctx, u.UserID, &data); err != nil {
		return true, err
	}
	tr := h.ctrl.Translator(data.Language)

	if u.Command() == h.cfg.StartCommand || (u.IsCallback && u.Text == h.cfg.StartCallback) {
		return true, h.start(ctx, u, tr)
	}
	if u.IsCallback && u.Text == flow.CallbackCancel {
		return true, h.ctrl.Cancel(ctx, u.ChatID, u.UserID, tr)
	}
	if u.IsCallback && u.Text == flow.CallbackBack {
		return true, h.back(ctx, u, tr, &data)
	}
	if u.IsCallback && !flow.OwnsCallback(u.Text, h.cfg.StartCallback, h.confirm) {
		// A tap on another feature's keyboard; leave it for the chain.
		return false, nil
	}

	switch h.ctrl.Step(ctx, u.UserID) {
	case h.stepSubject:
		return true, h.handleSubject(ctx, u, tr, &data)
	case h.stepBody:
		return true, h.handleBody(ctx, u, tr, &data)
	case h.stepPreview:
		return true, h.handlePreview(ctx, u, tr, &data)
	default:
		return false, nil
	}
}

func (h *Handler) start(ctx context.Context, u *update.Context, tr i18n.Translator) error {
	if err := h.ctrl.Start(ctx, u.UserID, h.stepSubject, Data{Language: tr.Lang()}); err != nil {
		return err
	}
	return h.prompt(ctx, u, tr, h.cfg.PromptSubject)
}

func (h *Handler) handleSubject(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	subject := strings.TrimSpace(u.Text)
	if subject == "" || u.IsCallback {
		return nil
	}

	data.Subject = subject
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, h.stepBody); err != nil {
		return err
	}
	return h.prompt(ctx, u, tr, h.cfg.PromptBody)
}

func (h *Handler) handleBody(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	body := strings.TrimSpace(u.Text)
	if body == "" || u.IsCallback {
		return nil
	}

	data.Body = body
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, h.stepPreview); err != nil {
		return err
	}

	summary := tr.Tf(h.cfg.Preview, data.Subject, data.Body)
	rows := [][]responder.Button{
		{{Text: tr.T("flow.confirm"), Data: h.confirm}},
		navRow(tr),
	}
	return h.show(ctx, u, render.InlineScreen(summary, rows))
}

func (h *Handler) handlePreview(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if !u.IsCallback || u.Text != h.confirm {
		return nil
	}

	key := idempotency.ConfirmKey(u.UserID, h.cfg.Name, data.Subject, data.Body)

	result, err := h.idem.Execute(ctx, key, func(ctx context.Context) (any, error) {
		return h.cfg.Submit(ctx, u.UserID, data.Subject, data.Body)
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrInProgress) {
			return nil
		}
		return err
	}
	if result.FromCache {
		return nil
	}

	if err := h.ctrl.Finish(ctx, u.UserID); err != nil {
		return err
	}
	return h.show(ctx, u, render.TextScreen(tr.T(h.cfg.Submitted)))
}

func (h *Handler) back(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	switch h.ctrl.Step(ctx, u.UserID) {
	case h.stepBody:
		if err := h.ctrl.Advance(ctx, u.UserID, h.stepSubject); err != nil {
			return err
		}
		return h.prompt(ctx, u, tr, h.cfg.PromptSubject)
	case h.stepPreview:
		if err := h.ctrl.Advance(ctx, u.UserID, h.stepBody); err != nil {
			return err
		}
		return h.prompt(ctx, u, tr, h.cfg.PromptBody)
	default:
		return nil
	}
}

func (h *Handler) prompt(ctx context.Context, u *update.Context, tr i18n.Translator, key string) error {
	return h.show(ctx, u, render.InlineScreen(tr.T(key), [][]responder.Button{navRow(tr)}))
}

func (h *Handler) show(ctx context.Context, u *update.Context, screen render.Screen) error {
	return h.ctrl.Renderer().Show(ctx, u.ChatID, u.UserID, screen)
}

func navRow(tr i18n.Translator) []responder.Button {
	return []responder.Button{
		{Text: tr.T("flow.back"), Data: flow.CallbackBack},
		{Text: tr.T("flow.cancel"), Data: flow.CallbackCancel},
	}
}

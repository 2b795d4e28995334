// Package finance implements the wallet top-up wizard: amount, payment
// receipt reference, preview, idempotent confirm. The balance view command
// also lives here.
package finance

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

// Wizard steps.
const (
	StepAmount    = state.Step("finance_amount")
	StepReference = state.Step("finance_reference")
	StepPreview   = state.Step("finance_preview")
)

const (
	prefix          = "finance_"
	startCommand    = "topup"
	startCallback   = "finance:topup"
	balanceCommand  = "balance"
	balanceCallback = "finance:balance"
	callbackConfirm = "finance:confirm"

	historyLimit = 5
)

// Data is the wizard's typed flow data.
type Data struct {
	Amount    float64 `json:"amount,omitempty"`
	Reference string  `json:"reference,omitempty"`
	Language  string  `json:"lang,omitempty"`
}

// WalletStore is the persistence surface the handler needs.
type WalletStore interface {
	ByUser(ctx context.Context, telegramID int64) (*domain.Wallet, error)
	Credit(ctx context.Context, telegramID int64, amount float64, description, referenceID string) error
	Transactions(ctx context.Context, telegramID int64, limit int) ([]*domain.WalletTransaction, error)
}

// Handler drives the top-up wizard and serves the balance view.
type Handler struct {
	ctrl    *flow.Controller
	wallets WalletStore
	idem    *idempotency.Manager
	log     *slog.Logger
}

// New builds the finance handler.
func New(ctrl *flow.Controller, wallets WalletStore, idem *idempotency.Manager, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{ctrl: ctrl, wallets: wallets, idem: idem, log: log}
}

func (h *Handler) Name() string { return "finance" }

func (h *Handler) CanHandle(ctx context.Context, u *update.Context) bool {
	switch {
	case u.Command() == startCommand, u.Command() == balanceCommand:
		return true
	case u.IsCallback && (u.Text == startCallback || u.Text == balanceCallback):
		return true
	}
	return h.ctrl.Step(ctx, u.UserID).HasPrefix(prefix)
}

func (h *Handler) Handle(ctx context.Context, u *update.Context) (bool, error) {
	var data Data
	if err := h.ctrl.LoadData(ctx, u.UserID, &data); err != nil {
		return true, err
	}
	tr := h.ctrl.Translator(data.Language)

	switch {
	case u.Command() == balanceCommand, u.IsCallback && u.Text == balanceCallback:
		return true, h.showBalance(ctx, u, tr)
	case u.Command() == startCommand, u.IsCallback && u.Text == startCallback:
		return true, h.start(ctx, u, tr)
	case u.IsCallback && u.Text == flow.CallbackCancel:
		return true, h.ctrl.Cancel(ctx, u.ChatID, u.UserID, tr)
	case u.IsCallback && u.Text == flow.CallbackBack:
		return true, h.back(ctx, u, tr, &data)
	case u.IsCallback && !flow.OwnsCallback(u.Text, startCallback, balanceCallback, callbackConfirm):
		// A tap on another feature's keyboard; leave it for the chain.
		return false, nil
	}

	switch h.ctrl.Step(ctx, u.UserID) {
	case StepAmount:
		return true, h.handleAmount(ctx, u, tr, &data)
	case StepReference:
		return true, h.handleReference(ctx, u, tr, &data)
	case StepPreview:
		return true, h.handlePreview(ctx, u, tr, &data)
	default:
		return false, nil
	}
}

func (h *Handler) showBalance(ctx context.Context, u *update.Context, tr i18n.Translator) error {
	wallet, err := h.wallets.ByUser(ctx, u.UserID)
	if err != nil {
		return err
	}

	text := tr.Tf("finance.balance", flow.FormatAmount(wallet.Balance))

	txs, err := h.wallets.Transactions(ctx, u.UserID, historyLimit)
	if err == nil && len(txs) > 0 {
		lines := make([]string, 0, len(txs))
		for _, tx := range txs {
			lines = append(lines, tr.Tf("finance.history_line",
				tr.T("finance.kind_"+tx.Kind), flow.FormatAmount(tx.Amount)))
		}
		text += "\n\n" + strings.Join(lines, "\n")
	}

	rows := [][]responder.Button{
		{{Text: tr.T("finance.topup"), Data: startCallback}},
	}
	return h.show(ctx, u, render.InlineScreen(text, rows))
}

func (h *Handler) start(ctx context.Context, u *update.Context, tr i18n.Translator) error {
	if err := h.ctrl.Start(ctx, u.UserID, StepAmount, Data{Language: tr.Lang()}); err != nil {
		return err
	}
	return h.prompt(ctx, u, tr, "finance.prompt_amount")
}

func (h *Handler) handleAmount(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if u.IsCallback {
		return nil
	}

	amount, err := flow.ParseAmount(u.Text)
	if err != nil {
		return h.prompt(ctx, u, tr, "finance.amount_invalid")
	}

	data.Amount = amount
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepReference); err != nil {
		return err
	}
	return h.prompt(ctx, u, tr, "finance.prompt_reference")
}

func (h *Handler) handleReference(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	reference := strings.TrimSpace(u.Text)
	if reference == "" || u.IsCallback {
		return nil
	}

	data.Reference = reference
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepPreview); err != nil {
		return err
	}

	summary := tr.Tf("finance.preview", flow.FormatAmount(data.Amount), data.Reference)
	rows := [][]responder.Button{
		{{Text: tr.T("flow.confirm"), Data: callbackConfirm}},
		navRow(tr),
	}
	return h.show(ctx, u, render.InlineScreen(summary, rows))
}

func (h *Handler) handlePreview(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if !u.IsCallback || u.Text != callbackConfirm {
		return nil
	}

	key := idempotency.ConfirmKey(u.UserID, "finance",
		flow.FormatAmount(data.Amount), data.Reference)

	result, err := h.idem.Execute(ctx, key, func(ctx context.Context) (any, error) {
		err := h.wallets.Credit(ctx, u.UserID, data.Amount, "wallet top-up", data.Reference)
		return nil, err
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
	return h.show(ctx, u, render.TextScreen(tr.Tf("finance.submitted", flow.FormatAmount(data.Amount))))
}

func (h *Handler) back(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	switch h.ctrl.Step(ctx, u.UserID) {
	case StepReference:
		if err := h.ctrl.Advance(ctx, u.UserID, StepAmount); err != nil {
			return err
		}
		return h.prompt(ctx, u, tr, "finance.prompt_amount")
	case StepPreview:
		if err := h.ctrl.Advance(ctx, u.UserID, StepReference); err != nil {
			return err
		}
		return h.prompt(ctx, u, tr, "finance.prompt_reference")
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

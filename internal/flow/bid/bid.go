// Package bid implements bidding on published listings: a short wizard
// collecting amount, rate, and an optional message for the listing owner,
// plus the owner-side resolution of incoming bids.
package bid

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
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
	StepAmount  = state.Step("bid_amount")
	StepRate    = state.Step("bid_rate")
	StepMessage = state.Step("bid_message")
	StepPreview = state.Step("bid_preview")
)

const (
	prefix = "bid_"

	// startPrefix seeds the wizard with the listing being bid on, e.g.
	// "bid:17".
	startPrefix     = "bid:"
	callbackConfirm = "bid:confirm"
	skipMessage     = "bidmsg:skip"
)

// Data is the wizard's typed flow data.
type Data struct {
	RequestID int64   `json:"request_id"`
	Amount    float64 `json:"amount,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	Message   string  `json:"message,omitempty"`
	Language  string  `json:"lang,omitempty"`
}

// Store is the persistence surface the wizard needs.
type Store interface {
	Create(ctx context.Context, bid *domain.Bid) (*domain.Bid, error)
	RequestByID(ctx context.Context, id int64) (*domain.ExchangeRequest, error)
}

// Notifier delivers best-effort notices.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string)
}

// Handler drives the bid wizard.
type Handler struct {
	ctrl     *flow.Controller
	store    Store
	idem     *idempotency.Manager
	notifier Notifier
	log      *slog.Logger
}

// New builds the bid wizard handler.
func New(ctrl *flow.Controller, store Store, idem *idempotency.Manager, notifier Notifier, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{ctrl: ctrl, store: store, idem: idem, notifier: notifier, log: log}
}

func (h *Handler) Name() string { return "bid" }

func (h *Handler) CanHandle(ctx context.Context, u *update.Context) bool {
	if u.IsCallback && strings.HasPrefix(u.Text, startPrefix) {
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

	if u.IsCallback && strings.HasPrefix(u.Text, startPrefix) && u.Text != callbackConfirm {
		return true, h.start(ctx, u, tr)
	}
	if u.IsCallback && u.Text == flow.CallbackCancel {
		return true, h.ctrl.Cancel(ctx, u.ChatID, u.UserID, tr)
	}
	if u.IsCallback && u.Text == flow.CallbackBack {
		return true, h.back(ctx, u, tr, &data)
	}
	if u.IsCallback && !flow.OwnsCallback(u.Text, startPrefix, skipMessage) {
		// Resolution taps and other features' callbacks pass through.
		return false, nil
	}

	switch h.ctrl.Step(ctx, u.UserID) {
	case StepAmount:
		return true, h.handleAmount(ctx, u, tr, &data)
	case StepRate:
		return true, h.handleRate(ctx, u, tr, &data)
	case StepMessage:
		return true, h.handleMessage(ctx, u, tr, &data)
	case StepPreview:
		return true, h.handlePreview(ctx, u, tr, &data)
	default:
		return false, nil
	}
}

func (h *Handler) start(ctx context.Context, u *update.Context, tr i18n.Translator) error {
	requestID, err := strconv.ParseInt(strings.TrimPrefix(u.Text, startPrefix), 10, 64)
	if err != nil {
		return nil
	}

	// Bids only target published listings.
	req, err := h.store.RequestByID(ctx, requestID)
	if err != nil || req.Status != domain.RequestStatusPublished {
		return h.show(ctx, u, render.TextScreen(tr.T("bid.listing_gone")))
	}
	if req.TelegramUserID == u.UserID {
		return h.show(ctx, u, render.TextScreen(tr.T("bid.own_listing")))
	}

	if err := h.ctrl.Start(ctx, u.UserID, StepAmount, Data{RequestID: requestID, Language: tr.Lang()}); err != nil {
		return err
	}
	return h.promptText(ctx, u, tr, "bid.prompt_amount")
}

func (h *Handler) handleAmount(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if u.IsCallback {
		return nil
	}

	amount, err := flow.ParseAmount(u.Text)
	if err != nil {
		return h.promptText(ctx, u, tr, "bid.amount_invalid")
	}

	data.Amount = amount
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepRate); err != nil {
		return err
	}
	return h.promptText(ctx, u, tr, "bid.prompt_rate")
}

func (h *Handler) handleRate(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if u.IsCallback {
		return nil
	}

	rate, err := flow.ParseAmount(u.Text)
	if err != nil {
		return h.promptText(ctx, u, tr, "bid.rate_invalid")
	}

	data.Rate = rate
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepMessage); err != nil {
		return err
	}

	rows := [][]responder.Button{
		{{Text: tr.T("bid.skip"), Data: skipMessage}},
		navRow(tr),
	}
	return h.show(ctx, u, render.InlineScreen(tr.T("bid.prompt_message"), rows))
}

func (h *Handler) handleMessage(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if u.IsCallback {
		if u.Text != skipMessage {
			return nil
		}
		data.Message = ""
	} else {
		data.Message = strings.TrimSpace(u.Text)
	}

	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepPreview); err != nil {
		return err
	}
	return h.showPreview(ctx, u, tr, data)
}

func (h *Handler) showPreview(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	summary := tr.Tf("bid.preview",
		data.RequestID, flow.FormatAmount(data.Amount), flow.FormatAmount(data.Rate), data.Message)

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

	key := idempotency.ConfirmKey(u.UserID, "bid",
		strconv.FormatInt(data.RequestID, 10), flow.FormatAmount(data.Amount), flow.FormatAmount(data.Rate))

	result, err := h.idem.Execute(ctx, key, func(ctx context.Context) (any, error) {
		created, err := h.store.Create(ctx, &domain.Bid{
			ExchangeRequestID: data.RequestID,
			BidderTelegramID:  u.UserID,
			BidderDisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
			Amount:            data.Amount,
			Rate:              data.Rate,
			Message:           data.Message,
		})
		if err != nil {
			return nil, err
		}
		return created.ID, nil
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

	// Owner notification is best-effort.
	if req, err := h.store.RequestByID(ctx, data.RequestID); err == nil {
		ownerTr := h.ctrl.Translator("")
		h.notifier.Send(ctx, req.TelegramUserID, ownerTr.Tf("bid.owner_notice", req.RequestNumber))
	}

	return h.show(ctx, u, render.TextScreen(tr.T("bid.submitted")))
}

func (h *Handler) back(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	switch h.ctrl.Step(ctx, u.UserID) {
	case StepRate:
		if err := h.ctrl.Advance(ctx, u.UserID, StepAmount); err != nil {
			return err
		}
		return h.promptText(ctx, u, tr, "bid.prompt_amount")
	case StepMessage:
		if err := h.ctrl.Advance(ctx, u.UserID, StepRate); err != nil {
			return err
		}
		return h.promptText(ctx, u, tr, "bid.prompt_rate")
	case StepPreview:
		if err := h.ctrl.Advance(ctx, u.UserID, StepMessage); err != nil {
			return err
		}
		rows := [][]responder.Button{
			{{Text: tr.T("bid.skip"), Data: skipMessage}},
			navRow(tr),
		}
		return h.show(ctx, u, render.InlineScreen(tr.T("bid.prompt_message"), rows))
	default:
		return nil
	}
}

func (h *Handler) promptText(ctx context.Context, u *update.Context, tr i18n.Translator, key string) error {
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


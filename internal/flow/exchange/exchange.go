// Package exchange implements the listing-creation wizard: currency,
// transaction type, delivery method, location, amount, rate, and a free
// description, ending in a preview and an idempotent confirm that files the
// listing for moderator approval.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/flow"
	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/idempotency"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/repository"
	"github.com/qsmarket/market-bot/internal/responder"
	"github.com/qsmarket/market-bot/internal/state"
	"github.com/qsmarket/market-bot/internal/update"
)

// Wizard steps, in order.
const (
	StepCurrency    = state.Step("exchange_step_currency")
	StepTxType      = state.Step("exchange_step_tx_type")
	StepDelivery    = state.Step("exchange_step_delivery")
	StepCountry     = state.Step("exchange_step_country")
	StepCity        = state.Step("exchange_step_city")
	StepAmount      = state.Step("exchange_step_amount")
	StepRate        = state.Step("exchange_step_rate")
	StepDescription = state.Step("exchange_step_description")
	StepPreview     = state.Step("exchange_step_preview")
)

const (
	prefix        = "exchange_step_"
	startCommand  = "exchange"
	startCallback = "exchange:start"

	callbackConfirm = "exchange:confirm"
	pickCurrency    = "excur:"
	pickTxType      = "extype:"
	pickDelivery    = "exdeliv:"
	skipDescription = "exdesc:skip"

	// rateTolerance is the fraction the entered rate may deviate from the
	// cached reference before the guard engages.
	rateTolerance = 0.15

	feeSettingKey     = "exchange_fee_percent"
	defaultFeePercent = 1.0
)

var currencies = []string{"USD", "EUR", "GBP", "TRY", "AED"}

// Data is the wizard's typed flow data. PendingRate holds the value the
// rate-deviation guard is waiting to see confirmed by resubmission.
type Data struct {
	Currency    string  `json:"currency,omitempty"`
	TxType      string  `json:"tx_type,omitempty"`
	Delivery    string  `json:"delivery,omitempty"`
	Country     string  `json:"country,omitempty"`
	City        string  `json:"city,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Rate        float64 `json:"rate,omitempty"`
	Description string  `json:"description,omitempty"`
	PendingRate float64 `json:"pending_rate,omitempty"`
	Language    string  `json:"lang,omitempty"`
}

// Store is the persistence surface the wizard needs.
type Store interface {
	CreateRequest(ctx context.Context, req *domain.ExchangeRequest) (*domain.ExchangeRequest, error)
	ReferenceRate(ctx context.Context, currency string) (*domain.ExchangeRate, error)
}

// SettingsStore reads operator-tunable values.
type SettingsStore interface {
	GetFloat(ctx context.Context, key string, fallback float64) (float64, error)
}

// UserStore resolves display names for the created listing.
type UserStore interface {
	ByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
}

// Handler drives the wizard.
type Handler struct {
	ctrl     *flow.Controller
	store    Store
	settings SettingsStore
	users    UserStore
	idem     *idempotency.Manager
	log      *slog.Logger
}

// New builds the exchange wizard handler.
func New(ctrl *flow.Controller, store Store, settings SettingsStore, users UserStore, idem *idempotency.Manager, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{ctrl: ctrl, store: store, settings: settings, users: users, idem: idem, log: log}
}

func (h *Handler) Name() string { return "exchange" }

func (h *Handler) CanHandle(ctx context.Context, u *update.Context) bool {
	if u.Command() == startCommand || (u.IsCallback && u.Text == startCallback) {
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

	if u.Command() == startCommand || (u.IsCallback && u.Text == startCallback) {
		return true, h.start(ctx, u, tr)
	}
	if u.IsCallback && u.Text == flow.CallbackCancel {
		return true, h.ctrl.Cancel(ctx, u.ChatID, u.UserID, tr)
	}
	if u.IsCallback && u.Text == flow.CallbackBack {
		return true, h.back(ctx, u, tr, &data)
	}
	if u.IsCallback && !flow.OwnsCallback(u.Text,
		startCallback, callbackConfirm, pickCurrency, pickTxType, pickDelivery, skipDescription) {
		// A tap on another feature's keyboard; leave it for the chain.
		return false, nil
	}

	switch h.ctrl.Step(ctx, u.UserID) {
	case StepCurrency:
		return true, h.handleCurrency(ctx, u, tr, &data)
	case StepTxType:
		return true, h.handleTxType(ctx, u, tr, &data)
	case StepDelivery:
		return true, h.handleDelivery(ctx, u, tr, &data)
	case StepCountry:
		return true, h.handleText(ctx, u, tr, &data, StepCity, "exchange.prompt_city",
			func(v string) { data.Country = v })
	case StepCity:
		return true, h.handleText(ctx, u, tr, &data, StepAmount, "exchange.prompt_amount",
			func(v string) { data.City = v })
	case StepAmount:
		return true, h.handleAmount(ctx, u, tr, &data)
	case StepRate:
		return true, h.handleRate(ctx, u, tr, &data)
	case StepDescription:
		return true, h.handleDescription(ctx, u, tr, &data)
	case StepPreview:
		return true, h.handlePreview(ctx, u, tr, &data)
	default:
		return false, nil
	}
}

func (h *Handler) start(ctx context.Context, u *update.Context, tr i18n.Translator) error {
	if err := h.ctrl.Start(ctx, u.UserID, StepCurrency, Data{Language: tr.Lang()}); err != nil {
		return err
	}

	return h.showCurrencyPrompt(ctx, u, tr)
}

func (h *Handler) showCurrencyPrompt(ctx context.Context, u *update.Context, tr i18n.Translator) error {
	rows := make([][]responder.Button, 0, len(currencies)+1)
	for _, cur := range currencies {
		rows = append(rows, []responder.Button{{Text: cur, Data: pickCurrency + cur}})
	}
	rows = append(rows, cancelRow(tr))
	return h.show(ctx, u, render.InlineScreen(tr.T("exchange.prompt_currency"), rows))
}

func (h *Handler) handleCurrency(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if !u.IsCallback || !strings.HasPrefix(u.Text, pickCurrency) {
		// Free text at a pick step is not wizard input.
		return nil
	}

	data.Currency = strings.TrimPrefix(u.Text, pickCurrency)
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepTxType); err != nil {
		return err
	}
	return h.showTxTypePrompt(ctx, u, tr)
}

func (h *Handler) showTxTypePrompt(ctx context.Context, u *update.Context, tr i18n.Translator) error {
	rows := [][]responder.Button{
		{
			{Text: tr.T("exchange.type_buy"), Data: pickTxType + domain.TxTypeBuy},
			{Text: tr.T("exchange.type_sell"), Data: pickTxType + domain.TxTypeSell},
			{Text: tr.T("exchange.type_swap"), Data: pickTxType + domain.TxTypeSwap},
		},
		navRow(tr),
	}
	return h.show(ctx, u, render.InlineScreen(tr.T("exchange.prompt_tx_type"), rows))
}

func (h *Handler) handleTxType(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if !u.IsCallback || !strings.HasPrefix(u.Text, pickTxType) {
		return nil
	}

	data.TxType = strings.TrimPrefix(u.Text, pickTxType)
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepDelivery); err != nil {
		return err
	}
	return h.showDeliveryPrompt(ctx, u, tr)
}

func (h *Handler) showDeliveryPrompt(ctx context.Context, u *update.Context, tr i18n.Translator) error {
	rows := [][]responder.Button{
		{
			{Text: tr.T("exchange.delivery_bank"), Data: pickDelivery + domain.DeliveryBank},
			{Text: tr.T("exchange.delivery_paypal"), Data: pickDelivery + domain.DeliveryPaypal},
			{Text: tr.T("exchange.delivery_cash"), Data: pickDelivery + domain.DeliveryCash},
		},
		navRow(tr),
	}
	return h.show(ctx, u, render.InlineScreen(tr.T("exchange.prompt_delivery"), rows))
}

func (h *Handler) handleDelivery(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if !u.IsCallback || !strings.HasPrefix(u.Text, pickDelivery) {
		return nil
	}

	data.Delivery = strings.TrimPrefix(u.Text, pickDelivery)
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepCountry); err != nil {
		return err
	}
	return h.promptText(ctx, u, tr, "exchange.prompt_country")
}

func (h *Handler) handleText(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data, next state.Step, nextPrompt string, set func(string)) error {
	value := strings.TrimSpace(u.Text)
	if value == "" || u.IsCallback {
		return nil
	}

	set(value)
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, next); err != nil {
		return err
	}
	return h.promptText(ctx, u, tr, nextPrompt)
}

func (h *Handler) handleAmount(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if u.IsCallback {
		return nil
	}

	amount, err := flow.ParseAmount(u.Text)
	if err != nil {
		return h.promptText(ctx, u, tr, "exchange.amount_invalid")
	}

	data.Amount = amount
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepRate); err != nil {
		return err
	}
	return h.promptText(ctx, u, tr, "exchange.prompt_rate")
}

// handleRate applies the rate-deviation guard: a rate more than
// rateTolerance away from the cached reference does not advance the wizard.
// The attempted value becomes pending; resubmitting the identical value is
// the confirmation that advances.
func (h *Handler) handleRate(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if u.IsCallback {
		return nil
	}

	rate, err := flow.ParseAmount(u.Text)
	if err != nil {
		return h.promptText(ctx, u, tr, "exchange.rate_invalid")
	}

	reference, err := h.store.ReferenceRate(ctx, data.Currency)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if reference != nil && deviates(rate, reference.Rate) {
		if rate != data.PendingRate {
			data.PendingRate = rate
			if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
				return err
			}

			warning := tr.Tf("exchange.rate_warning",
				flow.FormatAmount(rate), flow.FormatAmount(reference.Rate),
				flow.FormatAmount(data.Amount*rate), flow.FormatAmount(data.Amount*reference.Rate))
			return h.show(ctx, u, render.InlineScreen(warning, [][]responder.Button{navRow(tr)}))
		}
		// Identical resubmission confirms the unusual rate.
	}

	data.Rate = rate
	data.PendingRate = 0
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepDescription); err != nil {
		return err
	}

	rows := [][]responder.Button{
		{{Text: tr.T("exchange.skip"), Data: skipDescription}},
		navRow(tr),
	}
	return h.show(ctx, u, render.InlineScreen(tr.T("exchange.prompt_description"), rows))
}

func (h *Handler) handleDescription(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if u.IsCallback {
		if u.Text != skipDescription {
			return nil
		}
		data.Description = ""
	} else {
		data.Description = strings.TrimSpace(u.Text)
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
	feePercent, err := h.settings.GetFloat(ctx, feeSettingKey, defaultFeePercent)
	if err != nil {
		return err
	}
	fee, total := totals(data, feePercent)

	summary := tr.Tf("exchange.preview",
		data.Currency, tr.T("exchange.type_"+data.TxType), tr.T("exchange.delivery_"+data.Delivery),
		data.Country, data.City,
		flow.FormatAmount(data.Amount), flow.FormatAmount(data.Rate),
		fmt.Sprintf("%.1f", feePercent), flow.FormatAmount(fee), flow.FormatAmount(total),
		data.Description)

	rows := [][]responder.Button{
		{{Text: tr.T("flow.confirm"), Data: callbackConfirm}},
		navRow(tr),
	}
	return h.show(ctx, u, render.InlineScreen(summary, rows))
}

// handlePreview commits the listing. The write runs under an idempotency
// key derived from the confirmed data, so a double-tap files one listing.
func (h *Handler) handlePreview(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if !u.IsCallback || u.Text != callbackConfirm {
		return nil
	}

	feePercent, err := h.settings.GetFloat(ctx, feeSettingKey, defaultFeePercent)
	if err != nil {
		return err
	}
	fee, total := totals(data, feePercent)

	displayName := u.FirstName
	if user, err := h.users.ByTelegramID(ctx, u.UserID); err == nil && user.DisplayName != "" {
		displayName = user.DisplayName
	}

	key := idempotency.ConfirmKey(u.UserID, "exchange",
		data.Currency, data.TxType, flow.FormatAmount(data.Amount), flow.FormatAmount(data.Rate))

	result, err := h.idem.Execute(ctx, key, func(ctx context.Context) (any, error) {
		created, err := h.store.CreateRequest(ctx, &domain.ExchangeRequest{
			TelegramUserID:  u.UserID,
			UserDisplayName: displayName,
			Currency:        data.Currency,
			TransactionType: data.TxType,
			DeliveryMethod:  data.Delivery,
			Country:         data.Country,
			City:            data.City,
			Amount:          data.Amount,
			ProposedRate:    data.Rate,
			FeePercent:      feePercent,
			FeeAmount:       fee,
			TotalAmount:     total,
			Description:     data.Description,
		})
		if err != nil {
			return nil, err
		}
		return created.RequestNumber, nil
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrInProgress) {
			return nil
		}
		// State and data stay intact; the user can tap confirm again.
		return err
	}
	if result.FromCache {
		return nil
	}

	if err := h.ctrl.Finish(ctx, u.UserID); err != nil {
		return err
	}

	var requestNumber int64
	_ = jsonUnmarshal(result.Response, &requestNumber)
	return h.show(ctx, u, render.TextScreen(tr.Tf("exchange.submitted", requestNumber)))
}

// back recomputes the previous prompt from captured data; nothing entered so
// far is lost.
func (h *Handler) back(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	switch h.ctrl.Step(ctx, u.UserID) {
	case StepTxType:
		if err := h.ctrl.Advance(ctx, u.UserID, StepCurrency); err != nil {
			return err
		}
		return h.showCurrencyPrompt(ctx, u, tr)
	case StepDelivery:
		if err := h.ctrl.Advance(ctx, u.UserID, StepTxType); err != nil {
			return err
		}
		return h.showTxTypePrompt(ctx, u, tr)
	case StepCountry:
		if err := h.ctrl.Advance(ctx, u.UserID, StepDelivery); err != nil {
			return err
		}
		return h.showDeliveryPrompt(ctx, u, tr)
	case StepCity:
		if err := h.ctrl.Advance(ctx, u.UserID, StepCountry); err != nil {
			return err
		}
		return h.promptText(ctx, u, tr, "exchange.prompt_country")
	case StepAmount:
		if err := h.ctrl.Advance(ctx, u.UserID, StepCity); err != nil {
			return err
		}
		return h.promptText(ctx, u, tr, "exchange.prompt_city")
	case StepRate:
		if err := h.ctrl.Advance(ctx, u.UserID, StepAmount); err != nil {
			return err
		}
		return h.promptText(ctx, u, tr, "exchange.prompt_amount")
	case StepDescription:
		if err := h.ctrl.Advance(ctx, u.UserID, StepRate); err != nil {
			return err
		}
		return h.promptText(ctx, u, tr, "exchange.prompt_rate")
	case StepPreview:
		if err := h.ctrl.Advance(ctx, u.UserID, StepDescription); err != nil {
			return err
		}
		rows := [][]responder.Button{
			{{Text: tr.T("exchange.skip"), Data: skipDescription}},
			navRow(tr),
		}
		return h.show(ctx, u, render.InlineScreen(tr.T("exchange.prompt_description"), rows))
	default:
		// First step has nowhere to go back to.
		return nil
	}
}

func (h *Handler) promptText(ctx context.Context, u *update.Context, tr i18n.Translator, key string) error {
	return h.show(ctx, u, render.InlineScreen(tr.T(key), [][]responder.Button{navRow(tr)}))
}

func (h *Handler) show(ctx context.Context, u *update.Context, screen render.Screen) error {
	return h.ctrl.Renderer().Show(ctx, u.ChatID, u.UserID, screen)
}

func deviates(rate, reference float64) bool {
	if reference <= 0 {
		return false
	}
	diff := rate - reference
	if diff < 0 {
		diff = -diff
	}
	return diff/reference > rateTolerance
}

// totals computes the fee and the listing total. Sellers have the fee taken
// out of the proceeds; buyers and swappers pay it on top.
func totals(data *Data, feePercent float64) (fee, total float64) {
	base := data.Amount * data.Rate
	fee = base * feePercent / 100

	if data.TxType == domain.TxTypeSell {
		return fee, base - fee
	}
	return fee, base + fee
}


func navRow(tr i18n.Translator) []responder.Button {
	return []responder.Button{
		{Text: tr.T("flow.back"), Data: flow.CallbackBack},
		{Text: tr.T("flow.cancel"), Data: flow.CallbackCancel},
	}
}

func cancelRow(tr i18n.Translator) []responder.Button {
	return []responder.Button{{Text: tr.T("flow.cancel"), Data: flow.CallbackCancel}}
}

func jsonUnmarshal(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

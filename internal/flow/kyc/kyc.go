// Package kyc implements the identity-verification wizard: display name,
// phone (with SMS code), email (with emailed code), country of residence,
// and an identity photo. The submission always lands in manual review.
package kyc

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/qsmarket/market-bot/internal/flow"
	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/responder"
	"github.com/qsmarket/market-bot/internal/state"
	"github.com/qsmarket/market-bot/internal/update"
	"github.com/qsmarket/market-bot/internal/verify"
)

// Wizard steps. OTP steps carry the expected code as payload, e.g.
// "kyc_step_otp:48213".
const (
	StepName     = state.Step("kyc_step_name")
	StepPhone    = state.Step("kyc_step_phone")
	StepOTP      = state.Step("kyc_step_otp")
	StepEmail    = state.Step("kyc_step_email")
	StepEmailOTP = state.Step("kyc_step_email_otp")
	StepCountry  = state.Step("kyc_step_country")
	StepPhoto    = state.Step("kyc_step_photo")
)

const (
	prefix        = "kyc_step_"
	startCommand  = "verify"
	startCallback = "kyc:start"
	otpLength     = 5
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Data is the wizard's typed flow data.
type Data struct {
	DisplayName string `json:"display_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Country     string `json:"country,omitempty"`
	PhotoFileID string `json:"photo_file_id,omitempty"`
	Language    string `json:"lang,omitempty"`
}

// UserStore is the slice of the user repository this wizard needs.
type UserStore interface {
	SubmitKyc(ctx context.Context, telegramID int64, displayName, phone, email, country, photoFileID string) error
}

// Handler drives the wizard.
type Handler struct {
	ctrl  *flow.Controller
	users UserStore
	sms   verify.CodeSender
	email verify.CodeSender
	log   *slog.Logger
}

// New builds the KYC wizard handler. Both senders are expected to be wrapped
// with verify.WithTimeout by the caller.
func New(ctrl *flow.Controller, users UserStore, sms, email verify.CodeSender, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{ctrl: ctrl, users: users, sms: sms, email: email, log: log}
}

func (h *Handler) Name() string { return "kyc" }

// CanHandle claims the start triggers and any update while the user is
// inside the wizard's namespace.
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

	if isCancel(u, tr) {
		return true, h.ctrl.Cancel(ctx, u.ChatID, u.UserID, tr)
	}

	// The wizard's only inline button is cancel, handled above; any other
	// callback belongs to another feature and stays unclaimed.
	if u.IsCallback {
		return false, nil
	}

	step := h.ctrl.Step(ctx, u.UserID)
	switch step.Base() {
	case StepName:
		return true, h.handleName(ctx, u, tr, &data)
	case StepPhone:
		return true, h.handlePhone(ctx, u, tr, &data)
	case StepOTP:
		return true, h.handleOTP(ctx, u, tr, &data, step.Payload(), false)
	case StepEmail:
		return true, h.handleEmail(ctx, u, tr, &data)
	case StepEmailOTP:
		return true, h.handleOTP(ctx, u, tr, &data, step.Payload(), true)
	case StepCountry:
		return true, h.handleCountry(ctx, u, tr, &data)
	case StepPhoto:
		return true, h.handlePhoto(ctx, u, tr, &data)
	default:
		// Stale callback from an abandoned wizard.
		return false, nil
	}
}

func (h *Handler) start(ctx context.Context, u *update.Context, tr i18n.Translator) error {
	if err := h.ctrl.Start(ctx, u.UserID, StepName, Data{Language: tr.Lang()}); err != nil {
		return err
	}
	return h.prompt(ctx, u, tr, "kyc.prompt_name")
}

func (h *Handler) handleName(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	name := strings.TrimSpace(u.Text)
	if name == "" || u.IsCallback {
		return h.prompt(ctx, u, tr, "kyc.prompt_name_invalid")
	}

	data.DisplayName = name
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepPhone); err != nil {
		return err
	}
	return h.promptContact(ctx, u, tr)
}

func (h *Handler) handlePhone(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	phone := u.ContactPhone
	if phone == "" {
		phone = normalizePhone(u.Text)
	}
	h.deleteInput(ctx, u)

	if phone == "" {
		return h.promptContact(ctx, u, tr)
	}

	data.Phone = phone
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	return h.sendPhoneCode(ctx, u, tr, data)
}

func (h *Handler) sendPhoneCode(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	code, err := verify.GenerateCode(otpLength)
	if err != nil {
		return err
	}

	// A delivery failure, including the provider timeout, routes the user
	// back to re-supply the phone number.
	if err := h.sms.SendCode(ctx, data.Phone, code); err != nil {
		h.log.Warn("sms code delivery failed", "user_id", u.UserID, "error", err)
		if err := h.ctrl.Advance(ctx, u.UserID, StepPhone); err != nil {
			return err
		}
		return h.promptContact(ctx, u, tr, "kyc.sms_failed")
	}

	if err := h.ctrl.Advance(ctx, u.UserID, StepOTP+state.Step(":"+code)); err != nil {
		return err
	}
	return h.prompt(ctx, u, tr, "kyc.prompt_otp")
}

func (h *Handler) handleOTP(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data, expected string, isEmail bool) error {
	entered := strings.TrimSpace(u.Text)
	h.deleteInput(ctx, u)

	if entered != expected {
		if isEmail {
			return h.prompt(ctx, u, tr, "kyc.email_otp_wrong")
		}
		return h.prompt(ctx, u, tr, "kyc.otp_wrong")
	}

	if isEmail {
		if err := h.ctrl.Advance(ctx, u.UserID, StepCountry); err != nil {
			return err
		}
		return h.prompt(ctx, u, tr, "kyc.prompt_country")
	}

	if err := h.ctrl.Advance(ctx, u.UserID, StepEmail); err != nil {
		return err
	}
	return h.prompt(ctx, u, tr, "kyc.prompt_email")
}

func (h *Handler) handleEmail(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	email := strings.ToLower(strings.TrimSpace(u.Text))
	h.deleteInput(ctx, u)

	if !emailPattern.MatchString(email) {
		return h.prompt(ctx, u, tr, "kyc.prompt_email_invalid")
	}

	data.Email = email
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}

	code, err := verify.GenerateCode(otpLength)
	if err != nil {
		return err
	}
	if err := h.email.SendCode(ctx, email, code); err != nil {
		h.log.Warn("email code delivery failed", "user_id", u.UserID, "error", err)
		if err := h.ctrl.Advance(ctx, u.UserID, StepEmail); err != nil {
			return err
		}
		return h.prompt(ctx, u, tr, "kyc.email_failed")
	}

	if err := h.ctrl.Advance(ctx, u.UserID, StepEmailOTP+state.Step(":"+code)); err != nil {
		return err
	}
	return h.prompt(ctx, u, tr, "kyc.prompt_email_otp")
}

func (h *Handler) handleCountry(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	country := strings.TrimSpace(u.Text)
	if country == "" || u.IsCallback {
		return h.prompt(ctx, u, tr, "kyc.prompt_country_invalid")
	}

	data.Country = country
	if err := h.ctrl.SaveData(ctx, u.UserID, data); err != nil {
		return err
	}
	if err := h.ctrl.Advance(ctx, u.UserID, StepPhoto); err != nil {
		return err
	}
	return h.prompt(ctx, u, tr, "kyc.prompt_photo")
}

func (h *Handler) handlePhoto(ctx context.Context, u *update.Context, tr i18n.Translator, data *Data) error {
	if !u.HasPhoto() {
		return h.prompt(ctx, u, tr, "kyc.prompt_photo_invalid")
	}

	data.PhotoFileID = u.PhotoFileID
	h.deleteInput(ctx, u)

	// The only persistence call of the wizard. Failure keeps state and
	// data intact so resending the photo retries the submission.
	err := h.users.SubmitKyc(ctx, u.UserID,
		data.DisplayName, data.Phone, data.Email, data.Country, data.PhotoFileID)
	if err != nil {
		return err
	}

	if err := h.ctrl.Finish(ctx, u.UserID); err != nil {
		return err
	}
	return h.ctrl.Renderer().Show(ctx, u.ChatID, u.UserID,
		render.TextScreen(tr.T("kyc.submitted")))
}

func (h *Handler) prompt(ctx context.Context, u *update.Context, tr i18n.Translator, key string, extra ...string) error {
	text := tr.T(key)
	for _, k := range extra {
		text = tr.T(k) + "\n\n" + text
	}

	return h.ctrl.Renderer().Show(ctx, u.ChatID, u.UserID, render.InlineScreen(text, cancelRow(tr)))
}

func (h *Handler) promptContact(ctx context.Context, u *update.Context, tr i18n.Translator, extra ...string) error {
	text := tr.T("kyc.prompt_phone")
	for _, k := range extra {
		text = tr.T(k) + "\n\n" + text
	}

	screen := render.ContactScreen(text, tr.T("kyc.share_contact"), tr.T("flow.cancel"))
	return h.ctrl.Renderer().Show(ctx, u.ChatID, u.UserID, screen)
}

// deleteInput removes the user's message carrying sensitive input (phone,
// code, email, photo) from the chat.
func (h *Handler) deleteInput(ctx context.Context, u *update.Context) {
	if u.MessageID == 0 || u.IsCallback {
		return
	}
	h.ctrl.Renderer().DeleteMessage(ctx, u.ChatID, u.MessageID)
}

func isCancel(u *update.Context, tr i18n.Translator) bool {
	if u.IsCallback {
		return u.Text == flow.CallbackCancel
	}
	return strings.TrimSpace(u.Text) == tr.T("flow.cancel")
}

func cancelRow(tr i18n.Translator) [][]responder.Button {
	return [][]responder.Button{{{Text: tr.T("flow.cancel"), Data: flow.CallbackCancel}}}
}

func normalizePhone(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '+' {
			return r
		}
		return -1
	}, strings.TrimSpace(raw))

	if len(cleaned) < 10 {
		return ""
	}
	return cleaned
}

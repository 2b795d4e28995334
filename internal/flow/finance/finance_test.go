package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/flow"
	"github.com/qsmarket/market-bot/internal/idempotency"
	"github.com/qsmarket/market-bot/internal/msgstate"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/responder/respondertest"
	"github.com/qsmarket/market-bot/internal/state"
	"github.com/qsmarket/market-bot/internal/update"
)

type credit struct {
	amount    float64
	reference string
}

type fakeWallets struct {
	balance  float64
	credits  []credit
	history  []*domain.WalletTransaction
	failNext error
}

func (w *fakeWallets) ByUser(_ context.Context, telegramID int64) (*domain.Wallet, error) {
	return &domain.Wallet{TelegramUserID: telegramID, Balance: w.balance}, nil
}

func (w *fakeWallets) Credit(_ context.Context, _ int64, amount float64, _, referenceID string) error {
	if w.failNext != nil {
		err := w.failNext
		w.failNext = nil
		return err
	}

	w.credits = append(w.credits, credit{amount: amount, reference: referenceID})
	w.balance += amount
	return nil
}

func (w *fakeWallets) Transactions(context.Context, int64, int) ([]*domain.WalletTransaction, error) {
	return w.history, nil
}

type harness struct {
	handler *Handler
	sender  *respondertest.Recorder
	wallets *fakeWallets
	ctrl    *flow.Controller
}

func setup(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	states := state.NewRedisStore(client, nil, time.Hour)
	tracker := msgstate.NewTracker(client, nil, time.Hour)
	sender := respondertest.New()
	renderer := render.New(sender, tracker, nil)
	ctrl := flow.NewController(states, renderer, nil, nil, nil)

	wallets := &fakeWallets{}
	idem := idempotency.NewManager(idempotency.NewRedisStore(client, nil), nil, time.Minute)
	handler := New(ctrl, wallets, idem, nil)

	return &harness{handler: handler, sender: sender, wallets: wallets, ctrl: ctrl}
}

func text(userID int64, body string) *update.Context {
	return &update.Context{ChatID: userID, UserID: userID, Text: body, MessageID: 7}
}

func callback(userID int64, data string) *update.Context {
	return &update.Context{ChatID: userID, UserID: userID, Text: data, IsCallback: true}
}

func (h *harness) mustHandle(t *testing.T, u *update.Context) {
	t.Helper()
	handled, err := h.handler.Handle(context.Background(), u)
	require.NoError(t, err)
	require.True(t, handled)
}

func TestTopUpEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/topup"))
	assert.Equal(t, StepAmount, h.ctrl.Step(ctx, 42))

	h.mustHandle(t, text(42, "250"))
	assert.Equal(t, StepReference, h.ctrl.Step(ctx, 42))

	h.mustHandle(t, text(42, "TRX-90817"))
	assert.Equal(t, StepPreview, h.ctrl.Step(ctx, 42))

	h.mustHandle(t, callback(42, "finance:confirm"))

	require.Len(t, h.wallets.credits, 1)
	assert.Equal(t, 250.0, h.wallets.credits[0].amount)
	assert.Equal(t, "TRX-90817", h.wallets.credits[0].reference)
	assert.Empty(t, h.ctrl.Step(ctx, 42))
}

func TestTopUpConfirmIsIdempotent(t *testing.T) {
	h := setup(t)

	h.mustHandle(t, text(42, "/topup"))
	h.mustHandle(t, text(42, "250"))
	h.mustHandle(t, text(42, "TRX-90817"))

	h.mustHandle(t, callback(42, "finance:confirm"))
	h.mustHandle(t, callback(42, "finance:confirm"))

	assert.Len(t, h.wallets.credits, 1)
}

func TestTopUpFailedCreditKeepsStateForRetry(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/topup"))
	h.mustHandle(t, text(42, "250"))
	h.mustHandle(t, text(42, "TRX-90817"))

	h.wallets.failNext = errors.New("db down")
	handled, err := h.handler.Handle(ctx, callback(42, "finance:confirm"))
	require.Error(t, err)
	require.True(t, handled)
	assert.Equal(t, StepPreview, h.ctrl.Step(ctx, 42))

	h.mustHandle(t, callback(42, "finance:confirm"))
	assert.Len(t, h.wallets.credits, 1)
}

func TestTopUpCancelFromEveryStep(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	inputs := [][]*update.Context{
		{},
		{text(42, "250")},
		{text(42, "250"), text(42, "TRX-90817")},
	}
	for _, walk := range inputs {
		h.mustHandle(t, text(42, "/topup"))
		for _, u := range walk {
			h.mustHandle(t, u)
		}

		h.mustHandle(t, callback(42, flow.CallbackCancel))
		assert.Empty(t, h.ctrl.Step(ctx, 42))
	}
	assert.Empty(t, h.wallets.credits)
}

func TestTopUpBack(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/topup"))
	h.mustHandle(t, text(42, "250"))
	h.mustHandle(t, text(42, "TRX-90817"))

	h.mustHandle(t, callback(42, flow.CallbackBack))
	assert.Equal(t, StepReference, h.ctrl.Step(ctx, 42))

	h.mustHandle(t, callback(42, flow.CallbackBack))
	assert.Equal(t, StepAmount, h.ctrl.Step(ctx, 42))

	var data Data
	require.NoError(t, h.ctrl.LoadData(ctx, 42, &data))
	assert.Equal(t, 250.0, data.Amount)
}

func TestTopUpInvalidAmountReprompts(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/topup"))
	h.mustHandle(t, text(42, "-5"))

	assert.Equal(t, StepAmount, h.ctrl.Step(ctx, 42))
}

func TestBalanceViewListsHistory(t *testing.T) {
	h := setup(t)
	h.wallets.balance = 1200
	h.wallets.history = []*domain.WalletTransaction{
		{Kind: domain.WalletTxCredit, Amount: 500},
		{Kind: domain.WalletTxDebit, Amount: 100},
	}

	h.mustHandle(t, text(42, "/balance"))

	ops := h.sender.Ops()
	require.NotEmpty(t, ops)
	assert.Contains(t, h.sender.LastText(), "1200")
}

func TestTopUpDeclinesForeignCallback(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/topup"))

	handled, err := h.handler.Handle(ctx, callback(42, "stage:home"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, StepAmount, h.ctrl.Step(ctx, 42))
}

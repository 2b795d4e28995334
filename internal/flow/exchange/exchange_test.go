package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsmarket/market-bot/internal/dispatch"
	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/flow"
	"github.com/qsmarket/market-bot/internal/idempotency"
	"github.com/qsmarket/market-bot/internal/msgstate"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/repository"
	"github.com/qsmarket/market-bot/internal/responder/respondertest"
	"github.com/qsmarket/market-bot/internal/state"
	"github.com/qsmarket/market-bot/internal/update"
)

type fakeStore struct {
	rates      map[string]float64
	created    []*domain.ExchangeRequest
	failCreate error
	nextNumber int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rates: make(map[string]float64), nextNumber: 1000}
}

func (s *fakeStore) CreateRequest(_ context.Context, req *domain.ExchangeRequest) (*domain.ExchangeRequest, error) {
	if s.failCreate != nil {
		err := s.failCreate
		s.failCreate = nil
		return nil, err
	}

	s.nextNumber++
	created := *req
	created.ID = s.nextNumber
	created.RequestNumber = s.nextNumber
	created.Status = domain.RequestStatusPendingApproval
	s.created = append(s.created, &created)
	return &created, nil
}

func (s *fakeStore) ReferenceRate(_ context.Context, currency string) (*domain.ExchangeRate, error) {
	rate, ok := s.rates[currency]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &domain.ExchangeRate{Currency: currency, Rate: rate}, nil
}

type fakeSettings struct{ fee float64 }

func (s *fakeSettings) GetFloat(_ context.Context, _ string, fallback float64) (float64, error) {
	if s.fee == 0 {
		return fallback, nil
	}
	return s.fee, nil
}

type fakeUsers struct{ name string }

func (u *fakeUsers) ByTelegramID(_ context.Context, id int64) (*domain.User, error) {
	if u.name == "" {
		return nil, errors.New("not found")
	}
	return &domain.User{TelegramID: id, DisplayName: u.name}, nil
}

type harness struct {
	handler *Handler
	sender  *respondertest.Recorder
	store   *fakeStore
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

	store := newFakeStore()
	idem := idempotency.NewManager(idempotency.NewRedisStore(client, nil), nil, time.Minute)
	handler := New(ctrl, store, &fakeSettings{fee: 2.0}, &fakeUsers{name: "Sara"}, idem, nil)

	return &harness{handler: handler, sender: sender, store: store, ctrl: ctrl}
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

// walk drives the wizard from start through the description step.
func (h *harness) walk(t *testing.T, userID int64) {
	t.Helper()

	h.mustHandle(t, text(userID, "/exchange"))
	h.mustHandle(t, callback(userID, "excur:USD"))
	h.mustHandle(t, callback(userID, "extype:sell"))
	h.mustHandle(t, callback(userID, "exdeliv:bank"))
	h.mustHandle(t, text(userID, "Germany"))
	h.mustHandle(t, text(userID, "Berlin"))
	h.mustHandle(t, text(userID, "1000"))
	h.mustHandle(t, text(userID, "98"))
	h.mustHandle(t, text(userID, "fast settlement preferred"))
}

func TestExchangeEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.walk(t, 42)
	assert.Equal(t, StepPreview, h.ctrl.Step(ctx, 42))

	h.mustHandle(t, callback(42, "exchange:confirm"))

	require.Len(t, h.store.created, 1)
	created := h.store.created[0]
	assert.Equal(t, domain.RequestStatusPendingApproval, created.Status)
	assert.Equal(t, "USD", created.Currency)
	assert.Equal(t, domain.TxTypeSell, created.TransactionType)
	assert.Equal(t, domain.DeliveryBank, created.DeliveryMethod)
	assert.Equal(t, "Germany", created.Country)
	assert.Equal(t, "Berlin", created.City)
	assert.Equal(t, 1000.0, created.Amount)
	assert.Equal(t, 98.0, created.ProposedRate)
	assert.Equal(t, "Sara", created.UserDisplayName)

	// Sellers have the 2% fee taken out of the proceeds.
	assert.InDelta(t, 1960.0, created.FeeAmount, 0.001)
	assert.InDelta(t, 1000*98-1960.0, created.TotalAmount, 0.001)

	assert.Empty(t, h.ctrl.Step(ctx, 42))
}

func TestExchangeBuyerPaysFeeOnTop(t *testing.T) {
	h := setup(t)

	h.mustHandle(t, text(42, "/exchange"))
	h.mustHandle(t, callback(42, "excur:EUR"))
	h.mustHandle(t, callback(42, "extype:buy"))
	h.mustHandle(t, callback(42, "exdeliv:paypal"))
	h.mustHandle(t, text(42, "France"))
	h.mustHandle(t, text(42, "Paris"))
	h.mustHandle(t, text(42, "100"))
	h.mustHandle(t, text(42, "50"))
	h.mustHandle(t, callback(42, "exdesc:skip"))
	h.mustHandle(t, callback(42, "exchange:confirm"))

	require.Len(t, h.store.created, 1)
	created := h.store.created[0]
	assert.InDelta(t, 100.0, created.FeeAmount, 0.001)
	assert.InDelta(t, 5100.0, created.TotalAmount, 0.001)
	assert.Empty(t, created.Description)
}

func TestExchangeRateGuardWarnsThenConfirmsOnResubmit(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.store.rates["USD"] = 100

	h.mustHandle(t, text(42, "/exchange"))
	h.mustHandle(t, callback(42, "excur:USD"))
	h.mustHandle(t, callback(42, "extype:sell"))
	h.mustHandle(t, callback(42, "exdeliv:bank"))
	h.mustHandle(t, text(42, "Germany"))
	h.mustHandle(t, text(42, "Berlin"))
	h.mustHandle(t, text(42, "1000"))

	// 130 deviates more than 15% from the cached 100: no advance.
	h.mustHandle(t, text(42, "130"))
	assert.Equal(t, StepRate, h.ctrl.Step(ctx, 42))

	var data Data
	require.NoError(t, h.ctrl.LoadData(ctx, 42, &data))
	assert.Equal(t, 130.0, data.PendingRate)

	// Resubmitting the identical value confirms it.
	h.mustHandle(t, text(42, "130"))
	assert.Equal(t, StepDescription, h.ctrl.Step(ctx, 42))

	require.NoError(t, h.ctrl.LoadData(ctx, 42, &data))
	assert.Equal(t, 130.0, data.Rate)
	assert.Zero(t, data.PendingRate)
}

func TestExchangeRateGuardResetsOnDifferentValue(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.store.rates["USD"] = 100

	h.mustHandle(t, text(42, "/exchange"))
	h.mustHandle(t, callback(42, "excur:USD"))
	h.mustHandle(t, callback(42, "extype:sell"))
	h.mustHandle(t, callback(42, "exdeliv:bank"))
	h.mustHandle(t, text(42, "Germany"))
	h.mustHandle(t, text(42, "Berlin"))
	h.mustHandle(t, text(42, "1000"))

	h.mustHandle(t, text(42, "130"))
	h.mustHandle(t, text(42, "140"))
	assert.Equal(t, StepRate, h.ctrl.Step(ctx, 42))

	var data Data
	require.NoError(t, h.ctrl.LoadData(ctx, 42, &data))
	assert.Equal(t, 140.0, data.PendingRate)
}

func TestExchangeRateWithinToleranceAdvances(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	h.store.rates["USD"] = 100

	h.mustHandle(t, text(42, "/exchange"))
	h.mustHandle(t, callback(42, "excur:USD"))
	h.mustHandle(t, callback(42, "extype:sell"))
	h.mustHandle(t, callback(42, "exdeliv:bank"))
	h.mustHandle(t, text(42, "Germany"))
	h.mustHandle(t, text(42, "Berlin"))
	h.mustHandle(t, text(42, "1000"))

	h.mustHandle(t, text(42, "110"))
	assert.Equal(t, StepDescription, h.ctrl.Step(ctx, 42))
}

func TestExchangeConfirmIsIdempotent(t *testing.T) {
	h := setup(t)

	h.walk(t, 42)
	h.mustHandle(t, callback(42, "exchange:confirm"))
	h.mustHandle(t, callback(42, "exchange:confirm"))

	assert.Len(t, h.store.created, 1)
}

func TestExchangeFailedConfirmKeepsStateForRetry(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.walk(t, 42)
	h.store.failCreate = errors.New("db down")

	handled, err := h.handler.Handle(ctx, callback(42, "exchange:confirm"))
	require.Error(t, err)
	require.True(t, handled)
	assert.Equal(t, StepPreview, h.ctrl.Step(ctx, 42))

	h.mustHandle(t, callback(42, "exchange:confirm"))
	assert.Len(t, h.store.created, 1)
}

func TestExchangeCancelMidWizard(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/exchange"))
	h.mustHandle(t, callback(42, "excur:USD"))
	h.mustHandle(t, callback(42, "extype:buy"))

	h.mustHandle(t, callback(42, flow.CallbackCancel))

	assert.Empty(t, h.ctrl.Step(ctx, 42))
	var data Data
	require.NoError(t, h.ctrl.LoadData(ctx, 42, &data))
	assert.Empty(t, data.Currency)
}

func TestExchangeBackWalksTheWholeChain(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.walk(t, 42)

	backTo := []state.Step{
		StepDescription, StepRate, StepAmount, StepCity, StepCountry, StepDelivery, StepTxType, StepCurrency,
	}
	for _, want := range backTo {
		h.mustHandle(t, callback(42, flow.CallbackBack))
		assert.Equal(t, want, h.ctrl.Step(ctx, 42))
	}

	// Everything captured so far survives the walk back.
	var data Data
	require.NoError(t, h.ctrl.LoadData(ctx, 42, &data))
	assert.Equal(t, "USD", data.Currency)
	assert.Equal(t, "Berlin", data.City)
	assert.Equal(t, 1000.0, data.Amount)
}

func TestExchangeStrayTextAtPickStepIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/exchange"))
	h.mustHandle(t, text(42, "dollars please"))

	assert.Equal(t, StepCurrency, h.ctrl.Step(ctx, 42))
}

func TestExchangePersianDigitsAccepted(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/exchange"))
	h.mustHandle(t, callback(42, "excur:USD"))
	h.mustHandle(t, callback(42, "extype:sell"))
	h.mustHandle(t, callback(42, "exdeliv:cash"))
	h.mustHandle(t, text(42, "Iran"))
	h.mustHandle(t, text(42, "Tehran"))
	h.mustHandle(t, text(42, "۱٬۵۰۰"))

	assert.Equal(t, StepRate, h.ctrl.Step(ctx, 42))

	var data Data
	require.NoError(t, h.ctrl.LoadData(ctx, 42, &data))
	assert.Equal(t, 1500.0, data.Amount)
}

type chainRecorder struct {
	seen []string
}

func (c *chainRecorder) Name() string                                    { return "recorder" }
func (c *chainRecorder) CanHandle(context.Context, *update.Context) bool { return true }

func (c *chainRecorder) Handle(_ context.Context, u *update.Context) (bool, error) {
	c.seen = append(c.seen, u.Text)
	return true, nil
}

func TestExchangeReleasesForeignCallbackMidWizard(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/exchange"))
	h.mustHandle(t, callback(42, "excur:USD"))
	h.mustHandle(t, callback(42, "extype:sell"))
	h.mustHandle(t, callback(42, "exdeliv:bank"))
	h.mustHandle(t, text(42, "Germany"))
	h.mustHandle(t, text(42, "Berlin"))
	require.Equal(t, StepAmount, h.ctrl.Step(ctx, 42))

	// A tap on another feature's button travels down the chain instead of
	// dying inside the wizard, and the wizard keeps its place.
	next := &chainRecorder{}
	d := dispatch.New(nil, nil, h.handler, next)
	d.Dispatch(ctx, callback(42, "bid_accept:1"))

	assert.Equal(t, []string{"bid_accept:1"}, next.seen)
	assert.Equal(t, StepAmount, h.ctrl.Step(ctx, 42))
}

func TestExchangeDeclinesForeignCallback(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/exchange"))

	handled, err := h.handler.Handle(ctx, callback(42, "finance:balance"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, StepCurrency, h.ctrl.Step(ctx, 42))
}

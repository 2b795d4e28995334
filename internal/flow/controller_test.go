package flow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/msgstate"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/responder/respondertest"
	"github.com/qsmarket/market-bot/internal/state"
)

type homeStub struct{ shown int }

func (h *homeStub) ShowHome(context.Context, int64, int64, i18n.Translator) error {
	h.shown++
	return nil
}

func setupController(t *testing.T) (*Controller, *respondertest.Recorder, *homeStub, state.Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	states := state.NewRedisStore(client, nil, time.Hour)
	tracker := msgstate.NewTracker(client, nil, time.Hour)
	sender := respondertest.New()
	renderer := render.New(sender, tracker, nil)
	home := &homeStub{}

	return NewController(states, renderer, nil, home, nil), sender, home, states
}

type tripData struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

func TestStartClearsPreviousWizard(t *testing.T) {
	ctx := context.Background()
	c, _, _, states := setupController(t)

	require.NoError(t, states.SetStep(ctx, 42, "kyc_step_name"))
	require.NoError(t, c.SaveData(ctx, 42, tripData{Currency: "USD"}))

	require.NoError(t, c.Start(ctx, 42, "exchange_step_currency", nil))

	assert.Equal(t, state.Step("exchange_step_currency"), c.Step(ctx, 42))

	var data tripData
	require.NoError(t, c.LoadData(ctx, 42, &data))
	assert.Empty(t, data.Currency)
}

func TestStartSeedsCarriedContext(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := setupController(t)

	require.NoError(t, c.Start(ctx, 42, "bid_amount", tripData{Currency: "EUR"}))

	var data tripData
	require.NoError(t, c.LoadData(ctx, 42, &data))
	assert.Equal(t, "EUR", data.Currency)
}

func TestMutateRoundTrips(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := setupController(t)

	require.NoError(t, c.SaveData(ctx, 42, tripData{Currency: "USD"}))

	var data tripData
	require.NoError(t, c.Mutate(ctx, 42, &data, func() { data.Amount = 150 }))

	var reloaded tripData
	require.NoError(t, c.LoadData(ctx, 42, &reloaded))
	assert.Equal(t, "USD", reloaded.Currency)
	assert.Equal(t, 150.0, reloaded.Amount)
}

func TestCancelClearsEverything(t *testing.T) {
	ctx := context.Background()
	c, sender, home, states := setupController(t)

	require.NoError(t, states.SetStep(ctx, 42, "ticket_subject"))
	require.NoError(t, c.SaveData(ctx, 42, tripData{Currency: "USD"}))

	tr := c.Translator("fa")
	require.NoError(t, c.Cancel(ctx, 42, 42, tr))

	assert.Empty(t, c.Step(ctx, 42))

	var data tripData
	require.NoError(t, c.LoadData(ctx, 42, &data))
	assert.Empty(t, data.Currency)

	assert.Contains(t, sender.Ops(), "silent_remove")
	assert.Equal(t, 1, home.shown)
}

func TestStepEmptyWhenNoWizardActive(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := setupController(t)

	assert.Empty(t, c.Step(ctx, 42))
}

package ticket

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

type fakeTickets struct {
	created  []*domain.Ticket
	failNext error
}

func (f *fakeTickets) CreateTicket(_ context.Context, telegramID int64, subject, body string) (*domain.Ticket, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}

	ticket := &domain.Ticket{
		ID:             int64(len(f.created) + 1),
		TelegramUserID: telegramID,
		Subject:        subject,
		Body:           body,
		Status:         domain.TicketStatusOpen,
	}
	f.created = append(f.created, ticket)
	return ticket, nil
}

type harness struct {
	handler *Handler
	tickets *fakeTickets
	ctrl    *flow.Controller
}

func setup(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	states := state.NewRedisStore(client, nil, time.Hour)
	tracker := msgstate.NewTracker(client, nil, time.Hour)
	renderer := render.New(respondertest.New(), tracker, nil)
	ctrl := flow.NewController(states, renderer, nil, nil, nil)

	tickets := &fakeTickets{}
	idem := idempotency.NewManager(idempotency.NewRedisStore(client, nil), nil, time.Minute)
	handler := New(ctrl, tickets, idem, nil)

	return &harness{handler: handler, tickets: tickets, ctrl: ctrl}
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

func TestTicketEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/ticket"))
	assert.Equal(t, h.handler.StepSubject(), h.ctrl.Step(ctx, 42))

	h.mustHandle(t, text(42, "Payment stuck"))
	assert.Equal(t, h.handler.StepBody(), h.ctrl.Step(ctx, 42))

	h.mustHandle(t, text(42, "Sent a top-up an hour ago, balance unchanged."))
	assert.Equal(t, h.handler.StepPreview(), h.ctrl.Step(ctx, 42))

	h.mustHandle(t, callback(42, "ticket:confirm"))

	require.Len(t, h.tickets.created, 1)
	created := h.tickets.created[0]
	assert.Equal(t, "Payment stuck", created.Subject)
	assert.Equal(t, domain.TicketStatusOpen, created.Status)
	assert.Empty(t, h.ctrl.Step(ctx, 42))
}

func TestTicketConfirmIsIdempotent(t *testing.T) {
	h := setup(t)

	h.mustHandle(t, text(42, "/ticket"))
	h.mustHandle(t, text(42, "Payment stuck"))
	h.mustHandle(t, text(42, "details"))

	h.mustHandle(t, callback(42, "ticket:confirm"))
	h.mustHandle(t, callback(42, "ticket:confirm"))

	assert.Len(t, h.tickets.created, 1)
}

func TestTicketCancelFromEveryStep(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	walks := [][]*update.Context{
		{},
		{text(42, "subject")},
		{text(42, "subject"), text(42, "body")},
	}
	for _, walk := range walks {
		h.mustHandle(t, text(42, "/ticket"))
		for _, u := range walk {
			h.mustHandle(t, u)
		}

		h.mustHandle(t, callback(42, flow.CallbackCancel))
		assert.Empty(t, h.ctrl.Step(ctx, 42))
	}
	assert.Empty(t, h.tickets.created)
}

func TestTicketBackKeepsCapturedData(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/ticket"))
	h.mustHandle(t, text(42, "subject"))
	h.mustHandle(t, text(42, "body"))

	h.mustHandle(t, callback(42, flow.CallbackBack))
	assert.Equal(t, h.handler.StepBody(), h.ctrl.Step(ctx, 42))

	var data Data
	require.NoError(t, h.ctrl.LoadData(ctx, 42, &data))
	assert.Equal(t, "subject", data.Subject)
}

func TestTicketFailedSubmitKeepsStateForRetry(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/ticket"))
	h.mustHandle(t, text(42, "subject"))
	h.mustHandle(t, text(42, "body"))

	h.tickets.failNext = errors.New("db down")
	handled, err := h.handler.Handle(ctx, callback(42, "ticket:confirm"))
	require.Error(t, err)
	require.True(t, handled)

	assert.Equal(t, h.handler.StepPreview(), h.ctrl.Step(ctx, 42))
	h.mustHandle(t, callback(42, "ticket:confirm"))
	assert.Len(t, h.tickets.created, 1)
}

func TestTicketEmptySubjectIgnored(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/ticket"))
	h.mustHandle(t, text(42, "   "))

	assert.Equal(t, h.handler.StepSubject(), h.ctrl.Step(ctx, 42))
}

func TestTicketDeclinesForeignCallback(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	h.mustHandle(t, text(42, "/ticket"))

	handled, err := h.handler.Handle(ctx, callback(42, "finance:balance"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, h.handler.StepSubject(), h.ctrl.Step(ctx, 42))
}

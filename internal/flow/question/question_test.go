package question

import (
	"context"
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

type fakeQuestions struct {
	created []*domain.Question
}

func (f *fakeQuestions) CreateQuestion(_ context.Context, telegramID int64, topic, body string) (*domain.Question, error) {
	question := &domain.Question{
		ID:             int64(len(f.created) + 1),
		TelegramUserID: telegramID,
		Topic:          topic,
		Body:           body,
		Status:         domain.TicketStatusOpen,
	}
	f.created = append(f.created, question)
	return question, nil
}

func text(userID int64, body string) *update.Context {
	return &update.Context{ChatID: userID, UserID: userID, Text: body, MessageID: 7}
}

func callback(userID int64, data string) *update.Context {
	return &update.Context{ChatID: userID, UserID: userID, Text: data, IsCallback: true}
}

func TestQuestionEndToEnd(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	states := state.NewRedisStore(client, nil, time.Hour)
	tracker := msgstate.NewTracker(client, nil, time.Hour)
	renderer := render.New(respondertest.New(), tracker, nil)
	ctrl := flow.NewController(states, renderer, nil, nil, nil)

	questions := &fakeQuestions{}
	idem := idempotency.NewManager(idempotency.NewRedisStore(client, nil), nil, time.Minute)
	handler := New(ctrl, questions, idem, nil)

	steps := []*update.Context{
		text(42, "/question"),
		text(42, "Student visa"),
		text(42, "Which documents does the embassy need?"),
		callback(42, "question:confirm"),
	}
	for _, u := range steps {
		handled, err := handler.Handle(ctx, u)
		require.NoError(t, err)
		require.True(t, handled)
	}

	require.Len(t, questions.created, 1)
	assert.Equal(t, "Student visa", questions.created[0].Topic)
	assert.Empty(t, ctrl.Step(ctx, 42))

	// The question wizard answers only its own triggers.
	assert.False(t, handler.CanHandle(ctx, text(42, "/ticket")))
	assert.True(t, handler.CanHandle(ctx, text(42, "/question")))
}

// Package question implements the international-services question wizard.
// It is the ticket compose shape pointed at the question repository.
package question

import (
	"context"
	"log/slog"

	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/flow"
	"github.com/qsmarket/market-bot/internal/flow/ticket"
	"github.com/qsmarket/market-bot/internal/idempotency"
)

// QuestionStore is the slice of the ticket repository this wizard needs.
type QuestionStore interface {
	CreateQuestion(ctx context.Context, telegramID int64, topic, body string) (*domain.Question, error)
}

// New builds the question wizard.
func New(ctrl *flow.Controller, questions QuestionStore, idem *idempotency.Manager, log *slog.Logger) *ticket.Handler {
	return ticket.NewCompose(ctrl, ticket.Config{
		Name:          "question",
		StartCommand:  "question",
		StartCallback: "question:start",
		PromptSubject: "question.prompt_topic",
		PromptBody:    "question.prompt_body",
		Preview:       "question.preview",
		Submitted:     "question.submitted",
		Submit: func(ctx context.Context, telegramID int64, topic, body string) (int64, error) {
			question, err := questions.CreateQuestion(ctx, telegramID, topic, body)
			if err != nil {
				return 0, err
			}
			return question.ID, nil
		},
	}, idem, log)
}

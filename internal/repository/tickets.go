package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/qsmarket/market-bot/internal/apperr"
	"github.com/qsmarket/market-bot/internal/domain"
)

// Tickets persists support tickets and international-services questions.
type Tickets struct {
	db *sqlx.DB
}

// NewTickets builds the ticket repository.
func NewTickets(db *sqlx.DB) *Tickets {
	return &Tickets{db: db}
}

// CreateTicket inserts an open support ticket.
func (r *Tickets) CreateTicket(ctx context.Context, telegramID int64, subject, body string) (*domain.Ticket, error) {
	const query = `
		INSERT INTO tickets (telegram_user_id, subject, body, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING *`

	var ticket domain.Ticket
	err := r.db.GetContext(ctx, &ticket, query, telegramID, subject, body, domain.TicketStatusOpen)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return &ticket, nil
}

// TicketsByUser lists a user's tickets, newest first.
func (r *Tickets) TicketsByUser(ctx context.Context, telegramID int64, limit int) ([]*domain.Ticket, error) {
	if limit <= 0 {
		limit = 10
	}

	var tickets []*domain.Ticket
	err := r.db.SelectContext(ctx, &tickets,
		`SELECT * FROM tickets WHERE telegram_user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		telegramID, limit)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return tickets, nil
}

// CreateQuestion inserts an open question.
func (r *Tickets) CreateQuestion(ctx context.Context, telegramID int64, topic, body string) (*domain.Question, error) {
	const query = `
		INSERT INTO questions (telegram_user_id, topic, body, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING *`

	var question domain.Question
	err := r.db.GetContext(ctx, &question, query, telegramID, topic, body, domain.TicketStatusOpen)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return &question, nil
}

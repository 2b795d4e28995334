package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/qsmarket/market-bot/internal/apperr"
	"github.com/qsmarket/market-bot/internal/domain"
)

// Exchange persists exchange requests and reference rates.
type Exchange struct {
	db *sqlx.DB
}

// NewExchange builds the exchange repository.
func NewExchange(db *sqlx.DB) *Exchange {
	return &Exchange{db: db}
}

// CreateRequest inserts a new listing awaiting moderator approval. The
// request number comes from a dedicated sequence so it is unique and
// monotonically increasing across all listings.
func (r *Exchange) CreateRequest(ctx context.Context, req *domain.ExchangeRequest) (*domain.ExchangeRequest, error) {
	const query = `
		INSERT INTO exchange_requests (
			request_number, telegram_user_id, user_display_name, currency,
			transaction_type, delivery_method, country, city, amount,
			proposed_rate, fee_percent, fee_amount, total_amount,
			description, status, created_at
		) VALUES (
			nextval('exchange_request_number_seq'), $1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14, NOW()
		)
		RETURNING *`

	var created domain.ExchangeRequest
	err := r.db.GetContext(ctx, &created, query,
		req.TelegramUserID, req.UserDisplayName, req.Currency,
		req.TransactionType, req.DeliveryMethod, req.Country, req.City,
		req.Amount, req.ProposedRate, req.FeePercent, req.FeeAmount,
		req.TotalAmount, req.Description, domain.RequestStatusPendingApproval)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return &created, nil
}

// RequestByID fetches one listing.
func (r *Exchange) RequestByID(ctx context.Context, id int64) (*domain.ExchangeRequest, error) {
	var req domain.ExchangeRequest
	err := r.db.GetContext(ctx, &req, `SELECT * FROM exchange_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Database(err)
	}
	return &req, nil
}

// RequestsByUser lists a user's own listings, newest first.
func (r *Exchange) RequestsByUser(ctx context.Context, telegramID int64, limit int) ([]*domain.ExchangeRequest, error) {
	if limit <= 0 {
		limit = 20
	}

	var requests []*domain.ExchangeRequest
	err := r.db.SelectContext(ctx, &requests,
		`SELECT * FROM exchange_requests WHERE telegram_user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		telegramID, limit)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return requests, nil
}

// PublishedRequests lists open listings for browsing, newest first.
func (r *Exchange) PublishedRequests(ctx context.Context, limit int) ([]*domain.ExchangeRequest, error) {
	if limit <= 0 {
		limit = 20
	}

	var requests []*domain.ExchangeRequest
	err := r.db.SelectContext(ctx, &requests,
		`SELECT * FROM exchange_requests WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
		domain.RequestStatusPublished, limit)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return requests, nil
}

// SetRequestStatus mutates a listing's lifecycle status.
func (r *Exchange) SetRequestStatus(ctx context.Context, id int64, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE exchange_requests SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return apperr.Database(err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReferenceRate returns the cached market rate for the currency, or
// ErrNotFound when none has been recorded.
func (r *Exchange) ReferenceRate(ctx context.Context, currency string) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	err := r.db.GetContext(ctx, &rate, `SELECT * FROM exchange_rates WHERE currency = $1`, currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Database(err)
	}
	return &rate, nil
}

// UpsertReferenceRate stores the market rate for a currency.
func (r *Exchange) UpsertReferenceRate(ctx context.Context, currency string, rate float64) error {
	const query = `
		INSERT INTO exchange_rates (currency, rate, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (currency) DO UPDATE SET rate = EXCLUDED.rate, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, currency, rate); err != nil {
		return apperr.Database(err)
	}
	return nil
}

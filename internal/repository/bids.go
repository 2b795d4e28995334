package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/qsmarket/market-bot/internal/apperr"
	"github.com/qsmarket/market-bot/internal/domain"
)

// ErrNotOwner indicates the caller does not own the listing.
var ErrNotOwner = errors.New("caller is not the listing owner")

// ErrAlreadyResolved indicates the bid or its listing was already resolved.
var ErrAlreadyResolved = errors.New("bid already resolved")

// Bids persists bids placed against exchange requests.
type Bids struct {
	db *sqlx.DB
}

// NewBids builds the bid repository.
func NewBids(db *sqlx.DB) *Bids {
	return &Bids{db: db}
}

// Create inserts a pending bid.
func (r *Bids) Create(ctx context.Context, bid *domain.Bid) (*domain.Bid, error) {
	const query = `
		INSERT INTO bids (
			exchange_request_id, bidder_telegram_id, bidder_display_name,
			amount, rate, message, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING *`

	var created domain.Bid
	err := r.db.GetContext(ctx, &created, query,
		bid.ExchangeRequestID, bid.BidderTelegramID, bid.BidderDisplayName,
		bid.Amount, bid.Rate, bid.Message, domain.BidStatusPending)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return &created, nil
}

// ByID fetches one bid.
func (r *Bids) ByID(ctx context.Context, id int64) (*domain.Bid, error) {
	var bid domain.Bid
	err := r.db.GetContext(ctx, &bid, `SELECT * FROM bids WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Database(err)
	}
	return &bid, nil
}

// ByRequest lists all bids on a listing, newest first.
func (r *Bids) ByRequest(ctx context.Context, requestID int64) ([]*domain.Bid, error) {
	var bids []*domain.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE exchange_request_id = $1 ORDER BY created_at DESC`, requestID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return bids, nil
}

// AcceptResult reports the outcome of an acceptance: the winning bid and the
// losing bidders who must be notified.
type AcceptResult struct {
	Winner        *domain.Bid
	Request       *domain.ExchangeRequest
	LosingBidders []int64
}

// Accept resolves a bid for the listing owner. One transaction covers all
// three writes: the winner becomes accepted, every other pending bid on the
// listing becomes rejected, the listing becomes matched. Either everything
// lands or nothing does; notification of losers happens after commit.
func (r *Bids) Accept(ctx context.Context, bidID, ownerTelegramID int64) (*AcceptResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Database(err)
	}
	defer func() { _ = tx.Rollback() }()

	var bid domain.Bid
	if err := tx.GetContext(ctx, &bid, `SELECT * FROM bids WHERE id = $1 FOR UPDATE`, bidID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Database(err)
	}
	if bid.Status != domain.BidStatusPending {
		return nil, ErrAlreadyResolved
	}

	var req domain.ExchangeRequest
	if err := tx.GetContext(ctx, &req,
		`SELECT * FROM exchange_requests WHERE id = $1 FOR UPDATE`, bid.ExchangeRequestID); err != nil {
		return nil, apperr.Database(err)
	}
	if req.TelegramUserID != ownerTelegramID {
		return nil, ErrNotOwner
	}
	if req.Status != domain.RequestStatusPublished {
		return nil, ErrAlreadyResolved
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bids SET status = $2 WHERE id = $1`, bid.ID, domain.BidStatusAccepted); err != nil {
		return nil, apperr.Database(err)
	}

	var losers []int64
	if err := tx.SelectContext(ctx, &losers, `
		UPDATE bids SET status = $3
		WHERE exchange_request_id = $1 AND id <> $2 AND status = $4
		RETURNING bidder_telegram_id`,
		req.ID, bid.ID, domain.BidStatusRejected, domain.BidStatusPending); err != nil {
		return nil, apperr.Database(err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE exchange_requests SET status = $2 WHERE id = $1`,
		req.ID, domain.RequestStatusMatched); err != nil {
		return nil, apperr.Database(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Database(fmt.Errorf("accept bid commit: %w", err))
	}

	bid.Status = domain.BidStatusAccepted
	req.Status = domain.RequestStatusMatched
	return &AcceptResult{Winner: &bid, Request: &req, LosingBidders: losers}, nil
}

// Reject marks a single bid rejected without touching the listing.
func (r *Bids) Reject(ctx context.Context, bidID, ownerTelegramID int64) (*domain.Bid, error) {
	const query = `
		UPDATE bids SET status = $4
		FROM exchange_requests req
		WHERE bids.id = $1
		  AND bids.exchange_request_id = req.id
		  AND req.telegram_user_id = $2
		  AND bids.status = $3
		RETURNING bids.*`

	var bid domain.Bid
	err := r.db.GetContext(ctx, &bid, query,
		bidID, ownerTelegramID, domain.BidStatusPending, domain.BidStatusRejected)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlreadyResolved
		}
		return nil, apperr.Database(err)
	}
	return &bid, nil
}

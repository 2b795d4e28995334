package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/qsmarket/market-bot/internal/apperr"
	"github.com/qsmarket/market-bot/internal/domain"
)

// ErrInsufficientFunds indicates a debit exceeding the wallet balance.
var ErrInsufficientFunds = errors.New("insufficient wallet balance")

// Wallets persists internal balances and their transaction log.
type Wallets struct {
	db *sqlx.DB
}

// NewWallets builds the wallet repository.
func NewWallets(db *sqlx.DB) *Wallets {
	return &Wallets{db: db}
}

// ByUser returns the user's wallet, creating an empty one on first use.
func (r *Wallets) ByUser(ctx context.Context, telegramID int64) (*domain.Wallet, error) {
	const query = `
		INSERT INTO wallets (telegram_user_id, balance, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (telegram_user_id) DO UPDATE SET telegram_user_id = EXCLUDED.telegram_user_id
		RETURNING *`

	var wallet domain.Wallet
	if err := r.db.GetContext(ctx, &wallet, query, telegramID); err != nil {
		return nil, apperr.Database(err)
	}
	return &wallet, nil
}

// Credit applies a top-up: balance update and transaction row in one
// transaction. referenceID ties the credit to its payment receipt.
func (r *Wallets) Credit(ctx context.Context, telegramID int64, amount float64, description, referenceID string) error {
	return r.apply(ctx, telegramID, amount, domain.WalletTxCredit, description, referenceID)
}

// Debit withdraws from the balance, failing when funds are short.
func (r *Wallets) Debit(ctx context.Context, telegramID int64, amount float64, description, referenceID string) error {
	return r.apply(ctx, telegramID, -amount, domain.WalletTxDebit, description, referenceID)
}

func (r *Wallets) apply(ctx context.Context, telegramID int64, delta float64, kind, description, referenceID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Database(err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance float64
	err = tx.GetContext(ctx, &balance, `
		INSERT INTO wallets (telegram_user_id, balance, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (telegram_user_id) DO UPDATE SET telegram_user_id = EXCLUDED.telegram_user_id
		RETURNING balance`, telegramID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperr.Database(err)
	}

	if balance+delta < 0 {
		return ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $2, updated_at = NOW() WHERE telegram_user_id = $1`,
		telegramID, delta); err != nil {
		return apperr.Database(err)
	}

	amount := delta
	if amount < 0 {
		amount = -amount
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (telegram_user_id, kind, amount, description, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		telegramID, kind, amount, description, referenceID); err != nil {
		return apperr.Database(err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Database(err)
	}
	return nil
}

// Transactions lists the most recent wallet movements.
func (r *Wallets) Transactions(ctx context.Context, telegramID int64, limit int) ([]*domain.WalletTransaction, error) {
	if limit <= 0 {
		limit = 10
	}

	var txs []*domain.WalletTransaction
	err := r.db.SelectContext(ctx, &txs,
		`SELECT * FROM wallet_transactions WHERE telegram_user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		telegramID, limit)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return txs, nil
}

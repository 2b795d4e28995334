// Package repository implements Postgres persistence with sqlx. Each
// repository owns one aggregate; cross-aggregate writes that must be atomic
// run inside a single transaction here, never in the callers.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qsmarket/market-bot/internal/apperr"
	"github.com/qsmarket/market-bot/internal/domain"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Users persists marketplace users.
type Users struct {
	db *sqlx.DB
}

// NewUsers builds the user repository.
func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

// Upsert registers the user on first contact and refreshes profile fields on
// every subsequent one.
func (r *Users) Upsert(ctx context.Context, telegramID int64, firstName, lastName, username string) (*domain.User, error) {
	const query = `
		INSERT INTO users (telegram_id, first_name, last_name, username, kyc_status, language, last_active_at, created_at)
		VALUES ($1, $2, $3, $4, 'none', 'fa', NOW(), NOW())
		ON CONFLICT (telegram_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			username = EXCLUDED.username,
			last_active_at = NOW()
		RETURNING *`

	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, telegramID, firstName, lastName, username); err != nil {
		return nil, apperr.Database(err)
	}
	return &user, nil
}

// ByTelegramID fetches one user.
func (r *Users) ByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, apperr.Database(err)
	}
	return &user, nil
}

// SetLanguage stores the user's preferred language.
func (r *Users) SetLanguage(ctx context.Context, telegramID int64, language string) error {
	return r.exec(ctx, `UPDATE users SET language = $2 WHERE telegram_id = $1`, telegramID, language)
}

// SubmitKyc writes the collected identity fields and moves the user to
// pending review. Approval happens out of band.
func (r *Users) SubmitKyc(ctx context.Context, telegramID int64, displayName, phone, email, country, photoFileID string) error {
	const query = `
		UPDATE users SET
			display_name = $2,
			phone = $3,
			email = $4,
			country = $5,
			photo_file_id = $6,
			kyc_status = $7
		WHERE telegram_id = $1`

	return r.exec(ctx, query, telegramID, displayName, phone, email, country, photoFileID, domain.KycStatusPendingReview)
}

// SetKycStatus records a review decision.
func (r *Users) SetKycStatus(ctx context.Context, telegramID int64, status string, reviewedAt time.Time) error {
	return r.exec(ctx, `UPDATE users SET kyc_status = $2, kyc_reviewed_at = $3 WHERE telegram_id = $1`,
		telegramID, status, reviewedAt)
}

// SetCleanChatMode toggles aggressive deletion of transient messages.
func (r *Users) SetCleanChatMode(ctx context.Context, telegramID int64, enabled bool) error {
	return r.exec(ctx, `UPDATE users SET clean_chat_mode = $2 WHERE telegram_id = $1`, telegramID, enabled)
}

func (r *Users) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.Database(err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

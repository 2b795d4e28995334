package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/qsmarket/market-bot/internal/apperr"
	"github.com/qsmarket/market-bot/internal/stage"
)

// Permissions answers "may this user do that" questions from the
// user_permissions table.
type Permissions struct {
	db *sqlx.DB
}

// NewPermissions builds the permission repository.
func NewPermissions(db *sqlx.DB) *Permissions {
	return &Permissions{db: db}
}

var _ stage.PermissionChecker = (*Permissions)(nil)

// HasPermission reports whether the user holds the named permission.
func (r *Permissions) HasPermission(ctx context.Context, telegramID int64, permission string) (bool, error) {
	var held bool
	err := r.db.GetContext(ctx, &held, `
		SELECT EXISTS (
			SELECT 1 FROM user_permissions
			WHERE telegram_id = $1 AND permission = $2
		)`, telegramID, permission)
	if err != nil {
		return false, apperr.Database(err)
	}
	return held, nil
}

// Grant adds a permission, ignoring duplicates.
func (r *Permissions) Grant(ctx context.Context, telegramID int64, permission string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_permissions (telegram_id, permission)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, telegramID, permission)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

// Revoke removes a permission.
func (r *Permissions) Revoke(ctx context.Context, telegramID int64, permission string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_permissions WHERE telegram_id = $1 AND permission = $2`,
		telegramID, permission)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

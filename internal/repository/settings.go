package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/qsmarket/market-bot/internal/apperr"
)

// Settings reads operator-tunable values, e.g. the exchange fee percentage
// under key "exchange_fee_percent".
type Settings struct {
	db *sqlx.DB
}

// NewSettings builds the settings repository.
func NewSettings(db *sqlx.DB) *Settings {
	return &Settings{db: db}
}

// Get returns the raw value for a key, or fallback when the key is absent.
func (r *Settings) Get(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return "", apperr.Database(err)
	}
	return value, nil
}

// GetFloat returns a numeric setting, or fallback when absent or malformed.
func (r *Settings) GetFloat(ctx context.Context, key string, fallback float64) (float64, error) {
	raw, err := r.Get(ctx, key, "")
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, nil
	}
	return value, nil
}

// Set stores a value.
func (r *Settings) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return apperr.Database(err)
	}
	return nil
}

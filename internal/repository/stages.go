package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/qsmarket/market-bot/internal/apperr"
	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/stage"
)

// Stages reads the admin-authored screen tree.
type Stages struct {
	db *sqlx.DB
}

// NewStages builds the stage repository.
func NewStages(db *sqlx.DB) *Stages {
	return &Stages{db: db}
}

var _ stage.Repository = (*Stages)(nil)

// Stage fetches one screen by key.
func (r *Stages) Stage(ctx context.Context, key string) (*domain.Stage, error) {
	var st domain.Stage
	err := r.db.GetContext(ctx, &st, `SELECT * FROM stages WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stage.ErrNotFound
		}
		return nil, apperr.Database(err)
	}
	return &st, nil
}

// ButtonByLabel finds an enabled button whose caption matches a tapped
// reply-keyboard label in either language.
func (r *Stages) ButtonByLabel(ctx context.Context, label string) (*domain.StageButton, error) {
	var btn domain.StageButton
	err := r.db.GetContext(ctx, &btn,
		`SELECT * FROM stage_buttons
		 WHERE enabled AND (text_fa = $1 OR text_en = $1)
		 ORDER BY id LIMIT 1`, label)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stage.ErrNotFound
		}
		return nil, apperr.Database(err)
	}
	return &btn, nil
}

// Buttons fetches a screen's button grid in layout order.
func (r *Stages) Buttons(ctx context.Context, stageKey string) ([]*domain.StageButton, error) {
	var buttons []*domain.StageButton
	err := r.db.SelectContext(ctx, &buttons,
		`SELECT * FROM stage_buttons WHERE stage_key = $1 ORDER BY "row", col`, stageKey)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return buttons, nil
}

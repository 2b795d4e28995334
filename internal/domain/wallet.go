package domain

import "time"

// Wallet transaction kinds.
const (
	WalletTxCredit = "credit"
	WalletTxDebit  = "debit"
)

// Wallet holds a user's internal balance in toman.
type Wallet struct {
	TelegramUserID int64     `db:"telegram_user_id"`
	Balance        float64   `db:"balance"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// WalletTransaction is one credit or debit applied to a wallet.
type WalletTransaction struct {
	ID             int64     `db:"id"`
	TelegramUserID int64     `db:"telegram_user_id"`
	Kind           string    `db:"kind"`
	Amount         float64   `db:"amount"`
	Description    string    `db:"description"`
	ReferenceID    string    `db:"reference_id"`
	CreatedAt      time.Time `db:"created_at"`
}

package domain

import "time"

// Exchange request lifecycle status values.
const (
	RequestStatusPendingApproval = "pending_approval"
	RequestStatusPublished       = "published"
	RequestStatusMatched         = "matched"
	RequestStatusRejected        = "rejected"
	RequestStatusExpired         = "expired"
)

// Transaction types for an exchange request.
const (
	TxTypeBuy  = "buy"
	TxTypeSell = "sell"
	TxTypeSwap = "swap"
)

// Delivery methods.
const (
	DeliveryBank   = "bank"
	DeliveryPaypal = "paypal"
	DeliveryCash   = "cash"
)

// ExchangeRequest is a currency-exchange listing created at the end of the
// exchange wizard. It is written once on confirm and only its status is
// mutated afterwards.
type ExchangeRequest struct {
	ID              int64     `db:"id"`
	RequestNumber   int64     `db:"request_number"`
	TelegramUserID  int64     `db:"telegram_user_id"`
	UserDisplayName string    `db:"user_display_name"`
	Currency        string    `db:"currency"`
	TransactionType string    `db:"transaction_type"`
	DeliveryMethod  string    `db:"delivery_method"`
	Country         string    `db:"country"`
	City            string    `db:"city"`
	Amount          float64   `db:"amount"`
	ProposedRate    float64   `db:"proposed_rate"`
	FeePercent      float64   `db:"fee_percent"`
	FeeAmount       float64   `db:"fee_amount"`
	TotalAmount     float64   `db:"total_amount"`
	Description     string    `db:"description"`
	Status          string    `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
}

// ExchangeRate is a cached market reference rate for one currency.
type ExchangeRate struct {
	Currency  string    `db:"currency"`
	Rate      float64   `db:"rate"`
	UpdatedAt time.Time `db:"updated_at"`
}

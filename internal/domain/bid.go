package domain

import "time"

// Bid status values.
const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

// Bid is an offer placed against a published exchange request.
type Bid struct {
	ID                int64     `db:"id"`
	ExchangeRequestID int64     `db:"exchange_request_id"`
	BidderTelegramID  int64     `db:"bidder_telegram_id"`
	BidderDisplayName string    `db:"bidder_display_name"`
	Amount            float64   `db:"amount"`
	Rate              float64   `db:"rate"`
	Message           string    `db:"message"`
	Status            string    `db:"status"`
	CreatedAt         time.Time `db:"created_at"`
}

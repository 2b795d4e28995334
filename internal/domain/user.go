package domain

import "time"

// KYC verification status values for a user profile.
const (
	KycStatusNone          = "none"
	KycStatusPendingReview = "pending_review"
	KycStatusApproved      = "approved"
	KycStatusRejected      = "rejected"
)

// User represents a marketplace user stored in the database.
type User struct {
	ID            int64      `db:"id"`
	TelegramID    int64      `db:"telegram_id"`
	FirstName     string     `db:"first_name"`
	LastName      string     `db:"last_name"`
	Username      string     `db:"username"`
	DisplayName   string     `db:"display_name"`
	Language      string     `db:"language"`
	Phone         string     `db:"phone"`
	Email         string     `db:"email"`
	Country       string     `db:"country"`
	PhotoFileID   string     `db:"photo_file_id"`
	KycStatus     string     `db:"kyc_status"`
	CleanChatMode bool       `db:"clean_chat_mode"`
	LastActiveAt  time.Time  `db:"last_active_at"`
	CreatedAt     time.Time  `db:"created_at"`
	KycReviewedAt *time.Time `db:"kyc_reviewed_at"`
}

// Verified reports whether the user has completed identity verification.
func (u *User) Verified() bool {
	return u != nil && u.KycStatus == KycStatusApproved
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/pkg/enums"
)

// PaymentTransaction mirrors a checkout session owned by the payment
// provider. Created pending before the client is redirected so abandoned
// checkouts remain auditable; flipped to completed only by server-side
// verification.
type PaymentTransaction struct {
	ID              uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Type            enums.TransactionType   `gorm:"column:type;not null"`
	Status          enums.TransactionStatus `gorm:"column:status;not null;default:'pending'"`
	AmountCents     int64                   `gorm:"column:amount_cents;not null"`
	Currency        string                  `gorm:"column:currency;not null;default:'usd'"`
	StripeSessionID string                  `gorm:"column:stripe_session_id;not null;uniqueIndex"`
	SearchQuery     *string                 `gorm:"column:search_query"`
	CompletedAt     *time.Time              `gorm:"column:completed_at"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

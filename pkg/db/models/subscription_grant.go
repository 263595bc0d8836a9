package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/pkg/enums"
)

// SubscriptionGrant persists the billing provider's subscription state per
// user. At most one grant per user is authoritative at a time (the most
// recent one sourced from the provider).
type SubscriptionGrant struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;uniqueIndex"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null"`
	PlanType             enums.PlanType           `gorm:"column:plan_type;not null;default:'monthly'"`
	PriceID              *string                  `gorm:"column:price_id"`
	CurrentPeriodEnd     time.Time                `gorm:"column:current_period_end;not null"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

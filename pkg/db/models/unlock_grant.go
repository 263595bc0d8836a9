package models

import (
	"time"

	"github.com/google/uuid"
)

// UnlockGrant records a lifetime per-query unlock. SearchQuery is stored
// normalized (trimmed, lowercased); the (user_id, search_query) pair is
// unique so repeated verification calls collapse into one row.
type UnlockGrant struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_unlock_grants_user_query"`
	SearchQuery string    `gorm:"column:search_query;not null;uniqueIndex:idx_unlock_grants_user_query"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	UnlockedAt  time.Time `gorm:"column:unlocked_at;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product is a research catalog entry. Fetching and scoring live elsewhere;
// this table only backs the access-controlled list surface.
type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string          `gorm:"column:name;not null;index"`
	Brand       string          `gorm:"column:brand;not null"`
	Category    string          `gorm:"column:category;not null;index"`
	Description string          `gorm:"column:description"`
	Rating      decimal.Decimal `gorm:"column:rating;type:numeric(3,2);not null;default:0"`
	ReviewCount int             `gorm:"column:review_count;not null;default:0"`
	Tags        pq.StringArray  `gorm:"column:tags;type:text[];default:ARRAY[]::text[]"`
	ImageURL    *string         `gorm:"column:image_url"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prodlens/prodlens-backend/pkg/db/models"
)

// ProductDTO is the read shape for catalog entries on list surfaces.
type ProductDTO struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Rating      decimal.Decimal `json:"rating"`
	ReviewCount int             `json:"reviewCount"`
	Tags        []string        `json:"tags,omitempty"`
	ImageURL    *string         `json:"imageUrl,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SearchResult carries a capped result page. TotalCount always reflects the
// full match count so the client can render "N of M" upsell copy.
type SearchResult struct {
	Query             string       `json:"query"`
	Items             []ProductDTO `json:"items"`
	TotalCount        int          `json:"totalCount"`
	VisibleCount      int          `json:"visibleCount"`
	ShowUpgradeBanner bool         `json:"showUpgradeBanner"`
}

// CategoryPage is a cursor-paginated slice of a category listing.
type CategoryPage struct {
	Category   string       `json:"category"`
	Items      []ProductDTO `json:"items"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// FromModel converts a catalog row into its read shape.
func FromModel(product *models.Product) *ProductDTO {
	if product == nil {
		return nil
	}
	return &ProductDTO{
		ID:          product.ID,
		Name:        product.Name,
		Brand:       product.Brand,
		Category:    product.Category,
		Description: product.Description,
		Rating:      product.Rating,
		ReviewCount: product.ReviewCount,
		Tags:        product.Tags,
		ImageURL:    product.ImageURL,
		CreatedAt:   product.CreatedAt,
	}
}

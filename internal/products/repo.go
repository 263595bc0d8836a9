package products

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/prodlens/prodlens-backend/pkg/pagination"
)

// Repository exposes the catalog read paths behind the access-controlled
// surfaces. Writes happen in the ingestion pipeline, not here.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Search(ctx context.Context, query string) ([]ProductDTO, error)
	ListByCategory(ctx context.Context, category string, page pagination.Params) ([]ProductDTO, string, error)
	ListCategories(ctx context.Context) ([]string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

// productRecord scans the explicit column list; tags live in a postgres
// array column the list surfaces never need.
type productRecord struct {
	ID          uuid.UUID
	Name        string
	Brand       string
	Category    string
	Description string
	Rating      decimal.Decimal
	ReviewCount int
	ImageURL    sql.NullString
	CreatedAt   time.Time
}

const productColumns = "id, name, brand, category, description, rating, review_count, image_url, created_at"

func (record productRecord) toDTO() ProductDTO {
	dto := ProductDTO{
		ID:          record.ID,
		Name:        record.Name,
		Brand:       record.Brand,
		Category:    record.Category,
		Description: record.Description,
		Rating:      record.Rating,
		ReviewCount: record.ReviewCount,
		CreatedAt:   record.CreatedAt,
	}
	if record.ImageURL.Valid {
		url := record.ImageURL.String
		dto.ImageURL = &url
	}
	return dto
}

// likeEscaper neutralizes LIKE metacharacters so user input always
// matches literally. A query of "%" must not match the whole catalog.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search returns every row matching the query ordered best-first. The
// caller truncates to the viewer's visibility; the full count drives the
// upsell copy, so no LIMIT here.
func (r *repository) Search(ctx context.Context, query string) ([]ProductDTO, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(query))) + "%"

	var records []productRecord
	err := r.db.WithContext(ctx).
		Table("products").
		Select(productColumns).
		Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(brand) LIKE ? ESCAPE '\')`, pattern, pattern).
		Order("rating DESC").
		Order("review_count DESC").
		Order("id ASC").
		Scan(&records).
		Error
	if err != nil {
		return nil, err
	}

	items := make([]ProductDTO, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDTO())
	}
	return items, nil
}

// ListByCategory pages through a category newest-first with a keyset cursor.
func (r *repository) ListByCategory(ctx context.Context, category string, page pagination.Params) ([]ProductDTO, string, error) {
	pageSize := pagination.NormalizeLimit(page.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(page.Limit)

	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, "", err
	}

	qb := r.db.WithContext(ctx).
		Table("products").
		Select(productColumns).
		Where("category = ?", category)
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var records []productRecord
	err = qb.Order("created_at DESC").
		Order("id DESC").
		Limit(limitWithBuffer).
		Scan(&records).
		Error
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(records) > pageSize {
		records = records[:pageSize]
		last := records[len(records)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	items := make([]ProductDTO, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDTO())
	}
	return items, nextCursor, nil
}

// ListCategories returns the distinct category names in the catalog.
func (r *repository) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.db.WithContext(ctx).
		Table("products").
		Distinct("category").
		Order("category ASC").
		Pluck("category", &categories).
		Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

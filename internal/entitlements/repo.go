package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prodlens/prodlens-backend/pkg/db/models"
	"github.com/prodlens/prodlens-backend/pkg/enums"
)

// Repository handles grant and transaction persistence. Every write is a
// conflict-target upsert on a natural key; concurrent verification calls for
// the same session must not race into duplicate rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertSubscriptionGrant(ctx context.Context, grant *models.SubscriptionGrant) error
	FindLatestSubscriptionGrant(ctx context.Context, userID uuid.UUID) (*models.SubscriptionGrant, error)
	UpsertUnlockGrant(ctx context.Context, grant *models.UnlockGrant) error
	ListUnlockedQueries(ctx context.Context, userID uuid.UUID) ([]string, error)
	CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	FindTransactionBySessionID(ctx context.Context, sessionID string) (*models.PaymentTransaction, error)
	MarkTransactionCompleted(ctx context.Context, sessionID string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an entitlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) UpsertSubscriptionGrant(ctx context.Context, grant *models.SubscriptionGrant) error {
	if grant.StripeSubscriptionID == "" {
		return fmt.Errorf("stripe subscription id is required")
	}
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stripe_subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id",
				"status",
				"plan_type",
				"price_id",
				"current_period_end",
				"cancel_at_period_end",
				"canceled_at",
				"updated_at",
			}),
		}).
		Create(grant).Error
}

func (r *repository) FindLatestSubscriptionGrant(ctx context.Context, userID uuid.UUID) (*models.SubscriptionGrant, error) {
	var grant models.SubscriptionGrant
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("current_period_end DESC").
		First(&grant).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// UpsertUnlockGrant normalizes the query and inserts the grant, silently
// ignoring duplicates on (user_id, search_query).
func (r *repository) UpsertUnlockGrant(ctx context.Context, grant *models.UnlockGrant) error {
	grant.SearchQuery = NormalizeQuery(grant.SearchQuery)
	if grant.SearchQuery == "" {
		return fmt.Errorf("search query is required")
	}
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	if grant.UnlockedAt.IsZero() {
		grant.UnlockedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "search_query"}},
			DoNothing: true,
		}).
		Create(grant).Error
}

func (r *repository) ListUnlockedQueries(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var queries []string
	if err := r.db.WithContext(ctx).
		Model(&models.UnlockGrant{}).
		Where("user_id = ?", userID).
		Order("search_query ASC").
		Pluck("search_query", &queries).Error; err != nil {
		return nil, err
	}
	return queries, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	if txn.StripeSessionID == "" {
		return fmt.Errorf("stripe session id is required")
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_session_id"}},
			DoNothing: true,
		}).
		Create(txn).Error
}

func (r *repository) FindTransactionBySessionID(ctx context.Context, sessionID string) (*models.PaymentTransaction, error) {
	if sessionID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var txn models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("stripe_session_id = ?", sessionID).
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) MarkTransactionCompleted(ctx context.Context, sessionID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("stripe_session_id = ?", sessionID).
		Updates(map[string]any{
			"status":       enums.TransactionStatusCompleted,
			"completed_at": at,
		}).Error
}

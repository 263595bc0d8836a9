package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/pkg/enums"
)

// Customer is the oracle's customer record located by verified email.
type Customer struct {
	ID    string
	Email string
}

// Subscription is the oracle's view of a recurring grant.
type Subscription struct {
	ID                string
	Status            enums.SubscriptionStatus
	PriceID           string
	PlanType          enums.PlanType
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
}

// CheckoutSession mirrors the oracle-owned session the orchestrator creates
// and later verifies. Metadata carries what was purchased so verification
// never trusts anything client-supplied.
type CheckoutSession struct {
	ID             string
	URL            string
	CustomerID     string
	CustomerEmail  string
	Paid           bool
	Complete       bool
	Type           enums.TransactionType
	AmountCents    int64
	Currency       string
	SubscriptionID string
	UserID         uuid.UUID
	SearchQuery    string
}

// CreateSessionParams configures a new checkout session. Pricing comes from
// server config, never from the client.
type CreateSessionParams struct {
	UserID        uuid.UUID
	CustomerEmail string
	Type          enums.TransactionType
	SearchQuery   string
	AmountCents   int64
	Currency      string
	PlanType      enums.PlanType
	SuccessURL    string
	CancelURL     string
}

// Oracle is the external billing processor treated as the authoritative
// source of billing facts. The core consumes it as a black box; it never
// reimplements payment processing.
type Oracle interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	ListCompletedCheckoutSessions(ctx context.Context, customerID string) ([]CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, params CreateSessionParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
}

package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"github.com/prodlens/prodlens-backend/pkg/enums"
	pkgstripe "github.com/prodlens/prodlens-backend/pkg/stripe"
)

const (
	metadataUserID      = "user_id"
	metadataSearchQuery = "search_query"
	metadataGrantType   = "grant_type"
)

// StripeOracle adapts the Stripe API to the Oracle contract.
type StripeOracle struct {
	client *pkgstripe.Client
}

// NewStripeOracle wraps the shared Stripe client.
func NewStripeOracle(client *pkgstripe.Client) (*StripeOracle, error) {
	if client == nil || client.API() == nil {
		return nil, fmt.Errorf("stripe client is required")
	}
	return &StripeOracle{client: client}, nil
}

// FindCustomerByEmail locates the customer record by verified email. Lookup
// is always by email, not a locally cached customer id, so billing stays the
// source of truth even if local linkage is lost. Returns (nil, nil) when no
// customer exists.
func (o *StripeOracle) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Email:      stripe.String(email),
	}
	params.Limit = stripe.Int64(1)

	iter := o.client.API().Customers.List(params)
	for iter.Next() {
		c := iter.Customer()
		return &Customer{ID: c.ID, Email: c.Email}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return nil, nil
}

// ListSubscriptions returns the customer's non-canceled subscriptions,
// newest period first.
func (o *StripeOracle) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Customer:   stripe.String(customerID),
	}

	var subs []Subscription
	iter := o.client.API().Subscriptions.List(params)
	for iter.Next() {
		subs = append(subs, mapSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// ListCompletedCheckoutSessions returns the customer's completed sessions so
// reconciliation can self-heal grants missed by verification.
func (o *StripeOracle) ListCompletedCheckoutSessions(ctx context.Context, customerID string) ([]CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Customer:   stripe.String(customerID),
		Status:     stripe.String(string(stripe.CheckoutSessionStatusComplete)),
	}

	var sessions []CheckoutSession
	iter := o.client.API().CheckoutSessions.List(params)
	for iter.Next() {
		sessions = append(sessions, mapCheckoutSession(iter.CheckoutSession()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list checkout sessions: %w", err)
	}
	return sessions, nil
}

// CreateCheckoutSession opens a hosted checkout for one of the two
// purchasable products. The query is attached as immutable session metadata
// so verification can recover exactly what was purchased.
func (o *StripeOracle) CreateCheckoutSession(ctx context.Context, p CreateSessionParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:        stripe.Params{Context: ctx},
		CustomerEmail: stripe.String(p.CustomerEmail),
		SuccessURL:    stripe.String(p.SuccessURL),
		CancelURL:     stripe.String(p.CancelURL),
	}
	params.AddMetadata(metadataUserID, p.UserID.String())
	params.AddMetadata(metadataGrantType, string(p.Type))

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(p.AmountCents),
	}

	switch p.Type {
	case enums.TransactionTypeSubscription:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		interval := "month"
		if p.PlanType == enums.PlanTypeAnnual {
			interval = "year"
		}
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(interval),
		}
		priceData.ProductData = &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String("ProdLens Premium"),
		}
	case enums.TransactionTypeUnlock:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		priceData.ProductData = &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(fmt.Sprintf("Search unlock: %s", p.SearchQuery)),
		}
		params.AddMetadata(metadataSearchQuery, p.SearchQuery)
	default:
		return nil, fmt.Errorf("unsupported checkout type %q", p.Type)
	}

	params.LineItems = []*stripe.CheckoutSessionLineItemParams{
		{
			PriceData: priceData,
			Quantity:  stripe.Int64(1),
		},
	}

	created, err := o.client.API().CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	mapped := mapCheckoutSession(created)
	return &mapped, nil
}

// GetCheckoutSession retrieves a session directly from the oracle. Redirect
// parameters are never proof of payment; only this lookup is.
func (o *StripeOracle) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	found, err := o.client.API().CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	mapped := mapCheckoutSession(found)
	return &mapped, nil
}

// GetSubscription fetches the live subscription object after a verified
// subscription checkout.
func (o *StripeOracle) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	found, err := o.client.API().Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	mapped := mapSubscription(found)
	return &mapped, nil
}

func mapSubscription(sub *stripe.Subscription) Subscription {
	mapped := Subscription{
		ID:                sub.ID,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PlanType:          enums.PlanTypeMonthly,
	}
	if status, err := enums.ParseSubscriptionStatus(string(sub.Status)); err == nil {
		mapped.Status = status
	}
	if sub.CanceledAt > 0 {
		canceled := time.Unix(sub.CanceledAt, 0).UTC()
		mapped.CanceledAt = &canceled
	}
	// Billing period and price live on the subscription item.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodEnd > 0 {
			mapped.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
		if item.Price != nil {
			mapped.PriceID = item.Price.ID
			if item.Price.Recurring != nil && item.Price.Recurring.Interval == stripe.PriceRecurringIntervalYear {
				mapped.PlanType = enums.PlanTypeAnnual
			}
		}
	}
	return mapped
}

func mapCheckoutSession(session *stripe.CheckoutSession) CheckoutSession {
	mapped := CheckoutSession{
		ID:          session.ID,
		URL:         session.URL,
		Paid:        session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Complete:    session.Status == stripe.CheckoutSessionStatusComplete,
		AmountCents: session.AmountTotal,
		Currency:    string(session.Currency),
	}
	if session.Customer != nil {
		mapped.CustomerID = session.Customer.ID
		mapped.CustomerEmail = session.Customer.Email
	}
	if mapped.CustomerEmail == "" && session.CustomerDetails != nil {
		mapped.CustomerEmail = session.CustomerDetails.Email
	}
	if session.Subscription != nil {
		mapped.SubscriptionID = session.Subscription.ID
	}

	switch session.Mode {
	case stripe.CheckoutSessionModeSubscription:
		mapped.Type = enums.TransactionTypeSubscription
	case stripe.CheckoutSessionModePayment:
		mapped.Type = enums.TransactionTypeUnlock
	}
	if grantType, ok := session.Metadata[metadataGrantType]; ok {
		if parsed, err := enums.ParseTransactionType(grantType); err == nil {
			mapped.Type = parsed
		}
	}
	if raw, ok := session.Metadata[metadataUserID]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			mapped.UserID = id
		}
	}
	mapped.SearchQuery = session.Metadata[metadataSearchQuery]
	return mapped
}

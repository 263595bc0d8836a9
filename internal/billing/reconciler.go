package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/internal/entitlements"
	"github.com/prodlens/prodlens-backend/pkg/db/models"
	"github.com/prodlens/prodlens-backend/pkg/enums"
	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
	"github.com/prodlens/prodlens-backend/pkg/logger"
	"github.com/prodlens/prodlens-backend/pkg/metrics"
)

const (
	defaultOracleTimeout = 5 * time.Second
	// One retry at most. A reconciliation that keeps hammering a down
	// oracle would stack timeouts onto every access check.
	oracleAttempts = 2
)

// Reconciler derives an entitlement snapshot from the billing oracle and the
// durable grant tables. All oracle calls are bounded by a timeout and wrapped
// into the dependency-error taxonomy; the caller decides how to degrade.
type Reconciler struct {
	oracle  Oracle
	repo    entitlements.Repository
	logg    *logger.Logger
	metrics *metrics.EntitlementMetrics
	timeout time.Duration
	now     func() time.Time
}

// ReconcilerParams bundles the dependencies for the reconciler.
type ReconcilerParams struct {
	Oracle  Oracle
	Repo    entitlements.Repository
	Logger  *logger.Logger
	Metrics *metrics.EntitlementMetrics
	Timeout time.Duration
	Now     func() time.Time
}

// NewReconciler constructs a reconciler with the provided dependencies.
func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("entitlement repository is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultOracleTimeout
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		oracle:  params.Oracle,
		repo:    params.Repo,
		logg:    params.Logger,
		metrics: params.Metrics,
		timeout: timeout,
		now:     now,
	}, nil
}

// Reconcile recomputes the user's snapshot from oracle truth plus the durable
// unlock table. It never deletes a locally-confirmed grant: processor-sourced
// unlocks are merged by set union with whatever the local store already holds.
func (r *Reconciler) Reconcile(ctx context.Context, userID uuid.UUID, email string) (*entitlements.Snapshot, error) {
	now := r.now()
	if userID == uuid.Nil {
		return entitlements.AnonymousSnapshot(now), nil
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required for reconciliation")
	}

	customer, err := r.findCustomer(ctx, email)
	if err != nil {
		return nil, err
	}

	snap := entitlements.BasicSnapshot(userID, now)

	if customer != nil {
		if err := r.applySubscriptions(ctx, userID, customer.ID, snap, now); err != nil {
			return nil, err
		}
		if err := r.selfHealUnlocks(ctx, userID, customer.ID, now); err != nil {
			return nil, err
		}
	}

	// Local unlocks are merged regardless of customer presence; the local
	// store may be ahead of the processor's session list.
	queries, err := r.repo.ListUnlockedQueries(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list unlock grants")
	}
	snap.UnlockedQueries = queries
	if snap.UnlockedQueries == nil {
		snap.UnlockedQueries = []string{}
	}

	if snap.FullAccess() {
		snap.AccessLevel = enums.AccessLevelPremium
	}
	return snap, nil
}

func (r *Reconciler) findCustomer(ctx context.Context, email string) (*Customer, error) {
	var customer *Customer
	err := r.callOracle(ctx, "find_customer", func(callCtx context.Context) error {
		found, err := r.oracle.FindCustomerByEmail(callCtx, email)
		if err != nil {
			return err
		}
		customer = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (r *Reconciler) applySubscriptions(ctx context.Context, userID uuid.UUID, customerID string, snap *entitlements.Snapshot, now time.Time) error {
	var subs []Subscription
	err := r.callOracle(ctx, "list_subscriptions", func(callCtx context.Context) error {
		found, err := r.oracle.ListSubscriptions(callCtx, customerID)
		if err != nil {
			return err
		}
		subs = found
		return nil
	})
	if err != nil {
		return err
	}

	authoritative := pickAuthoritative(subs)
	if authoritative == nil {
		// Nothing live at the oracle; a previously synced past_due grant
		// may still be inside its paid period.
		stored, err := r.repo.FindLatestSubscriptionGrant(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription grant")
		}
		r.applyGrace(snap, stored, now)
		return nil
	}

	grant := subscriptionToGrant(userID, authoritative)
	if err := r.repo.UpsertSubscriptionGrant(ctx, grant); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert subscription grant")
	}

	snap.SubscriptionStatus = grant.Status
	snap.CurrentPeriodEnd = &grant.CurrentPeriodEnd
	snap.CancelAtPeriodEnd = grant.CancelAtPeriodEnd
	if grant.Status == enums.SubscriptionStatusActive {
		snap.HasActiveSubscription = true
		return nil
	}
	r.applyGrace(snap, grant, now)
	return nil
}

func (r *Reconciler) applyGrace(snap *entitlements.Snapshot, grant *models.SubscriptionGrant, now time.Time) {
	if !entitlements.InGracePeriod(grant, now) {
		return
	}
	snap.InGracePeriod = true
	snap.GraceRemaining = entitlements.FormatGraceRemaining(entitlements.GraceRemaining(grant, now))
	snap.SubscriptionStatus = grant.Status
	snap.CurrentPeriodEnd = &grant.CurrentPeriodEnd
	snap.CancelAtPeriodEnd = grant.CancelAtPeriodEnd
}

// selfHealUnlocks re-derives unlock grants from the oracle's completed
// session list, covering any verification the user never came back for.
func (r *Reconciler) selfHealUnlocks(ctx context.Context, userID uuid.UUID, customerID string, now time.Time) error {
	var sessions []CheckoutSession
	err := r.callOracle(ctx, "list_checkout_sessions", func(callCtx context.Context) error {
		found, err := r.oracle.ListCompletedCheckoutSessions(callCtx, customerID)
		if err != nil {
			return err
		}
		sessions = found
		return nil
	})
	if err != nil {
		return err
	}

	for _, session := range sessions {
		if session.Type != enums.TransactionTypeUnlock || !session.Paid {
			continue
		}
		query := entitlements.NormalizeQuery(session.SearchQuery)
		if query == "" {
			continue
		}
		grant := &models.UnlockGrant{
			UserID:      userID,
			SearchQuery: query,
			AmountCents: session.AmountCents,
			UnlockedAt:  now,
		}
		if err := r.repo.UpsertUnlockGrant(ctx, grant); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert unlock grant")
		}
	}
	return nil
}

// callOracle runs one oracle operation with a bounded timeout and a single
// retry. Exhausted attempts surface as a dependency error; access decisions
// must degrade restrictively, never hang or fail open.
func (r *Reconciler) callOracle(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < oracleAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("billing oracle %s canceled", op))
		}
		r.metrics.IncOracleRequest(op)
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		r.logg.Warn(r.logg.WithField(ctx, "oracle_op", op), "billing oracle call failed")
	}
	r.metrics.IncOracleFailure(op)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, fmt.Sprintf("billing oracle %s unavailable", op))
}

// pickAuthoritative selects at most one subscription: the newest active one,
// else the newest past_due one.
func pickAuthoritative(subs []Subscription) *Subscription {
	sorted := make([]Subscription, len(subs))
	copy(sorted, subs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CurrentPeriodEnd.After(sorted[j].CurrentPeriodEnd)
	})
	for _, status := range []enums.SubscriptionStatus{
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusPastDue,
	} {
		for i := range sorted {
			if sorted[i].Status == status {
				return &sorted[i]
			}
		}
	}
	return nil
}

func subscriptionToGrant(userID uuid.UUID, sub *Subscription) *models.SubscriptionGrant {
	grant := &models.SubscriptionGrant{
		UserID:               userID,
		StripeSubscriptionID: sub.ID,
		Status:               sub.Status,
		PlanType:             sub.PlanType,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CanceledAt:           sub.CanceledAt,
	}
	if sub.PriceID != "" {
		priceID := sub.PriceID
		grant.PriceID = &priceID
	}
	if !grant.PlanType.IsValid() {
		grant.PlanType = enums.PlanTypeMonthly
	}
	return grant
}

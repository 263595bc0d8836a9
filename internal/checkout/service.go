package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/internal/billing"
	"github.com/prodlens/prodlens-backend/internal/entitlements"
	"github.com/prodlens/prodlens-backend/pkg/config"
	"github.com/prodlens/prodlens-backend/pkg/db/models"
	"github.com/prodlens/prodlens-backend/pkg/enums"
	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
	"github.com/prodlens/prodlens-backend/pkg/logger"
)

const authRequiredMessage = "auth_required"

// Service orchestrates the two purchase flows: session creation and
// server-side verification. Verification is the only path that may create an
// UnlockGrant or activate a SubscriptionGrant from a "just paid" event.
type Service interface {
	CreateSession(ctx context.Context, userID uuid.UUID, email string, req CreateCheckoutRequest) (*CheckoutResponse, error)
	VerifyAndRecord(ctx context.Context, userID uuid.UUID, email string, sessionID string) (*VerificationResult, error)
}

type snapshotInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	oracle      billing.Oracle
	repo        entitlements.Repository
	invalidator snapshotInvalidator
	cfg         config.EntitlementsConfig
	stripeCfg   config.StripeConfig
	logg        *logger.Logger
	now         func() time.Time
}

// ServiceParams bundles the dependencies for the checkout service.
type ServiceParams struct {
	Oracle       billing.Oracle
	Repo         entitlements.Repository
	Invalidator  snapshotInvalidator
	Entitlements config.EntitlementsConfig
	Stripe       config.StripeConfig
	Logger       *logger.Logger
	Now          func() time.Time
}

// NewService constructs a checkout service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Oracle == nil {
		return nil, fmt.Errorf("billing oracle is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("entitlement repository is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		oracle:      params.Oracle,
		repo:        params.Repo,
		invalidator: params.Invalidator,
		cfg:         params.Entitlements,
		stripeCfg:   params.Stripe,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// CreateSession opens a hosted checkout. Anonymous callers are refused
// before any oracle call and before any transaction row exists; the caller
// translates the refusal into a login prompt.
func (s *service) CreateSession(ctx context.Context, userID uuid.UUID, email string, req CreateCheckoutRequest) (*CheckoutResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, authRequiredMessage)
	}

	grantType, err := enums.ParseTransactionType(req.Type)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown checkout type %q", req.Type))
	}

	params := billing.CreateSessionParams{
		UserID:        userID,
		CustomerEmail: strings.ToLower(strings.TrimSpace(email)),
		Type:          grantType,
		Currency:      s.cfg.Currency,
		PlanType:      enums.PlanTypeMonthly,
		SuccessURL:    s.stripeCfg.SuccessURL,
		CancelURL:     s.stripeCfg.CancelURL,
	}

	switch grantType {
	case enums.TransactionTypeSubscription:
		params.AmountCents = s.cfg.SubscriptionPriceCents()
		// Absent plan_type means the default monthly plan; a present but
		// unrecognized value is refused before any oracle call.
		if req.PlanType != "" {
			plan, err := enums.ParsePlanType(req.PlanType)
			if err != nil {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown plan type %q", req.PlanType))
			}
			params.PlanType = plan
		}
	case enums.TransactionTypeUnlock:
		query := entitlements.NormalizeQuery(req.Query)
		if query == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unlock checkout requires a search query")
		}
		params.SearchQuery = query
		params.AmountCents = s.cfg.UnlockPriceCents()
	}

	session, err := s.oracle.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	// Mirror the session before handing out the redirect so an abandoned
	// checkout still leaves an auditable pending row.
	txn := &models.PaymentTransaction{
		UserID:          userID,
		Type:            grantType,
		Status:          enums.TransactionStatusPending,
		AmountCents:     params.AmountCents,
		Currency:        params.Currency,
		StripeSessionID: session.ID,
	}
	if params.SearchQuery != "" {
		query := params.SearchQuery
		txn.SearchQuery = &query
	}
	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mirror transaction")
	}

	return &CheckoutResponse{RedirectURL: session.URL}, nil
}

// VerifyAndRecord re-fetches the session from the oracle, validates payment
// state and ownership, and grants idempotently. Safe to call repeatedly for
// the same session; duplicates collapse into no-op successes.
func (s *service) VerifyAndRecord(ctx context.Context, userID uuid.UUID, email string, sessionID string) (*VerificationResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, authRequiredMessage)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	session, err := s.oracle.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve checkout session")
	}
	if !session.Paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session is not paid")
	}
	if err := s.checkOwnership(session, userID, email); err != nil {
		return nil, err
	}

	now := s.now()
	switch session.Type {
	case enums.TransactionTypeSubscription:
		if err := s.recordSubscription(ctx, userID, session); err != nil {
			return nil, err
		}
	case enums.TransactionTypeUnlock:
		if err := s.recordUnlock(ctx, userID, session, now); err != nil {
			return nil, err
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session has no recognizable grant type")
	}

	// Ledger reflects processor truth even when the grant upsert was a
	// no-op. Create covers a mirror row lost or written by another node.
	mirror := &models.PaymentTransaction{
		UserID:          userID,
		Type:            session.Type,
		Status:          enums.TransactionStatusPending,
		AmountCents:     session.AmountCents,
		Currency:        session.Currency,
		StripeSessionID: session.ID,
	}
	if query := entitlements.NormalizeQuery(session.SearchQuery); query != "" {
		mirror.SearchQuery = &query
	}
	if err := s.repo.CreateTransaction(ctx, mirror); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mirror transaction")
	}
	if err := s.repo.MarkTransactionCompleted(ctx, session.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete transaction")
	}

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, userID); err != nil {
			s.logg.Warn(s.logg.WithUserID(ctx, userID.String()), "snapshot invalidation failed")
		}
	}

	return &VerificationResult{Verified: true, GrantType: session.Type}, nil
}

// checkOwnership refuses verification of somebody else's session. The
// session's own metadata wins; the customer email is the fallback for
// sessions created before metadata stamping.
func (s *service) checkOwnership(session *billing.CheckoutSession, userID uuid.UUID, email string) error {
	if session.UserID != uuid.Nil {
		if session.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "session belongs to another account")
		}
		return nil
	}
	sessionEmail := strings.ToLower(strings.TrimSpace(session.CustomerEmail))
	callerEmail := strings.ToLower(strings.TrimSpace(email))
	if sessionEmail == "" || sessionEmail != callerEmail {
		return pkgerrors.New(pkgerrors.CodeForbidden, "session belongs to another account")
	}
	return nil
}

func (s *service) recordSubscription(ctx context.Context, userID uuid.UUID, session *billing.CheckoutSession) error {
	if session.SubscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "paid session has no subscription attached")
	}
	sub, err := s.oracle.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch subscription")
	}

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
	if err := s.repo.UpsertSubscriptionGrant(ctx, grant); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert subscription grant")
	}
	return nil
}

func (s *service) recordUnlock(ctx context.Context, userID uuid.UUID, session *billing.CheckoutSession, now time.Time) error {
	// The query comes from immutable session metadata written at creation,
	// never from the verification request.
	query := entitlements.NormalizeQuery(session.SearchQuery)
	if query == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "unlock session carries no search query")
	}
	grant := &models.UnlockGrant{
		UserID:      userID,
		SearchQuery: query,
		AmountCents: session.AmountCents,
		UnlockedAt:  now,
	}
	if err := s.repo.UpsertUnlockGrant(ctx, grant); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert unlock grant")
	}
	return nil
}

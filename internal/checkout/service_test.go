package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/prodlens/prodlens-backend/internal/billing"
	"github.com/prodlens/prodlens-backend/internal/entitlements"
	"github.com/prodlens/prodlens-backend/pkg/config"
	"github.com/prodlens/prodlens-backend/pkg/db/models"
	"github.com/prodlens/prodlens-backend/pkg/enums"
	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
	"github.com/prodlens/prodlens-backend/pkg/logger"
)

type stubOracle struct {
	createdSession *billing.CheckoutSession
	createErr      error
	createCalls    int
	createParams   []billing.CreateSessionParams
	session        *billing.CheckoutSession
	sessionErr     error
	subscription   *billing.Subscription
	getSubErr      error
}

func (s *stubOracle) FindCustomerByEmail(_ context.Context, _ string) (*billing.Customer, error) {
	return nil, nil
}

func (s *stubOracle) ListSubscriptions(_ context.Context, _ string) ([]billing.Subscription, error) {
	return nil, nil
}

func (s *stubOracle) ListCompletedCheckoutSessions(_ context.Context, _ string) ([]billing.CheckoutSession, error) {
	return nil, nil
}

func (s *stubOracle) CreateCheckoutSession(_ context.Context, params billing.CreateSessionParams) (*billing.CheckoutSession, error) {
	s.createCalls++
	s.createParams = append(s.createParams, params)
	return s.createdSession, s.createErr
}

func (s *stubOracle) GetCheckoutSession(_ context.Context, _ string) (*billing.CheckoutSession, error) {
	return s.session, s.sessionErr
}

func (s *stubOracle) GetSubscription(_ context.Context, _ string) (*billing.Subscription, error) {
	return s.subscription, s.getSubErr
}

type memoryRepo struct {
	subGrants    map[string]*models.SubscriptionGrant
	unlockSet    map[uuid.UUID]map[string]*models.UnlockGrant
	transactions map[string]*models.PaymentTransaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		subGrants:    map[string]*models.SubscriptionGrant{},
		unlockSet:    map[uuid.UUID]map[string]*models.UnlockGrant{},
		transactions: map[string]*models.PaymentTransaction{},
	}
}

func (m *memoryRepo) WithTx(_ *gorm.DB) entitlements.Repository { return m }

func (m *memoryRepo) UpsertSubscriptionGrant(_ context.Context, grant *models.SubscriptionGrant) error {
	if existing, ok := m.subGrants[grant.StripeSubscriptionID]; ok {
		grant.ID = existing.ID
	} else if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	m.subGrants[grant.StripeSubscriptionID] = grant
	return nil
}

func (m *memoryRepo) FindLatestSubscriptionGrant(_ context.Context, userID uuid.UUID) (*models.SubscriptionGrant, error) {
	var latest *models.SubscriptionGrant
	for _, grant := range m.subGrants {
		if grant.UserID != userID {
			continue
		}
		if latest == nil || grant.CurrentPeriodEnd.After(latest.CurrentPeriodEnd) {
			latest = grant
		}
	}
	return latest, nil
}

func (m *memoryRepo) UpsertUnlockGrant(_ context.Context, grant *models.UnlockGrant) error {
	grant.SearchQuery = entitlements.NormalizeQuery(grant.SearchQuery)
	if grant.SearchQuery == "" {
		return errors.New("search query is required")
	}
	if m.unlockSet[grant.UserID] == nil {
		m.unlockSet[grant.UserID] = map[string]*models.UnlockGrant{}
	}
	if _, ok := m.unlockSet[grant.UserID][grant.SearchQuery]; ok {
		return nil
	}
	m.unlockSet[grant.UserID][grant.SearchQuery] = grant
	return nil
}

func (m *memoryRepo) ListUnlockedQueries(_ context.Context, userID uuid.UUID) ([]string, error) {
	queries := []string{}
	for query := range m.unlockSet[userID] {
		queries = append(queries, query)
	}
	return queries, nil
}

func (m *memoryRepo) CreateTransaction(_ context.Context, txn *models.PaymentTransaction) error {
	if _, ok := m.transactions[txn.StripeSessionID]; ok {
		return nil
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	m.transactions[txn.StripeSessionID] = txn
	return nil
}

func (m *memoryRepo) FindTransactionBySessionID(_ context.Context, sessionID string) (*models.PaymentTransaction, error) {
	return m.transactions[sessionID], nil
}

func (m *memoryRepo) MarkTransactionCompleted(_ context.Context, sessionID string, at time.Time) error {
	if txn, ok := m.transactions[sessionID]; ok {
		txn.Status = enums.TransactionStatusCompleted
		txn.CompletedAt = &at
	}
	return nil
}

type stubInvalidator struct {
	invalidated []uuid.UUID
}

func (s *stubInvalidator) Invalidate(_ context.Context, userID uuid.UUID) error {
	s.invalidated = append(s.invalidated, userID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel})
}

func testEntitlementsConfig() config.EntitlementsConfig {
	return config.EntitlementsConfig{
		SubscriptionPrice: decimal.NewFromFloat(9.99),
		UnlockPrice:       decimal.NewFromFloat(4.99),
		Currency:          "usd",
	}
}

func newTestService(t *testing.T, oracle billing.Oracle, repo entitlements.Repository, inv snapshotInvalidator, now time.Time) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Oracle:       oracle,
		Repo:         repo,
		Invalidator:  inv,
		Entitlements: testEntitlementsConfig(),
		Stripe: config.StripeConfig{
			SuccessURL: "https://app.example.com/success",
			CancelURL:  "https://app.example.com/cancel",
		},
		Logger: testLogger(),
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestCreateSessionAnonymousRefusedBeforeOracle(t *testing.T) {
	oracle := &stubOracle{}
	repo := newMemoryRepo()
	svc := newTestService(t, oracle, repo, nil, time.Now().UTC())

	_, err := svc.CreateSession(context.Background(), uuid.Nil, "", CreateCheckoutRequest{
		Type:  string(enums.TransactionTypeSubscription),
		Query: "",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if typed.Message() != authRequiredMessage {
		t.Fatalf("expected %q signal, got %q", authRequiredMessage, typed.Message())
	}
	if oracle.createCalls != 0 {
		t.Fatalf("anonymous checkout must not reach the oracle")
	}
	if len(repo.transactions) != 0 {
		t.Fatalf("anonymous checkout must not write a transaction")
	}
}

func TestCreateSessionUnlockRequiresQuery(t *testing.T) {
	oracle := &stubOracle{}
	svc := newTestService(t, oracle, newMemoryRepo(), nil, time.Now().UTC())

	_, err := svc.CreateSession(context.Background(), uuid.New(), "user@example.com", CreateCheckoutRequest{
		Type:  string(enums.TransactionTypeUnlock),
		Query: "   ",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if oracle.createCalls != 0 {
		t.Fatalf("invalid request must not reach the oracle")
	}
}

func TestCreateSessionMirrorsPendingTransaction(t *testing.T) {
	userID := uuid.New()
	oracle := &stubOracle{
		createdSession: &billing.CheckoutSession{
			ID:  "cs_1",
			URL: "https://checkout.stripe.com/c/cs_1",
		},
	}
	repo := newMemoryRepo()
	svc := newTestService(t, oracle, repo, nil, time.Now().UTC())

	resp, err := svc.CreateSession(context.Background(), userID, "User@Example.com ", CreateCheckoutRequest{
		Type:  string(enums.TransactionTypeUnlock),
		Query: "  Dyson Airwrap ",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if resp.RedirectURL != "https://checkout.stripe.com/c/cs_1" {
		t.Fatalf("unexpected redirect %q", resp.RedirectURL)
	}

	params := oracle.createParams[0]
	if params.CustomerEmail != "user@example.com" {
		t.Fatalf("expected normalized email, got %q", params.CustomerEmail)
	}
	if params.SearchQuery != "dyson airwrap" {
		t.Fatalf("expected normalized query, got %q", params.SearchQuery)
	}
	if params.AmountCents != 499 {
		t.Fatalf("unlock price must come from config, got %d", params.AmountCents)
	}

	txn := repo.transactions["cs_1"]
	if txn == nil {
		t.Fatalf("expected pending transaction row")
	}
	if txn.Status != enums.TransactionStatusPending {
		t.Fatalf("expected pending status, got %s", txn.Status)
	}
	if txn.SearchQuery == nil || *txn.SearchQuery != "dyson airwrap" {
		t.Fatalf("expected recorded query, got %+v", txn.SearchQuery)
	}
}

func TestCreateSessionSubscriptionUsesConfiguredPrice(t *testing.T) {
	oracle := &stubOracle{
		createdSession: &billing.CheckoutSession{ID: "cs_sub", URL: "https://checkout.stripe.com/c/cs_sub"},
	}
	svc := newTestService(t, oracle, newMemoryRepo(), nil, time.Now().UTC())

	_, err := svc.CreateSession(context.Background(), uuid.New(), "user@example.com", CreateCheckoutRequest{
		Type:     string(enums.TransactionTypeSubscription),
		PlanType: string(enums.PlanTypeAnnual),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	params := oracle.createParams[0]
	if params.AmountCents != 999 {
		t.Fatalf("subscription price must come from config, got %d", params.AmountCents)
	}
	if params.PlanType != enums.PlanTypeAnnual {
		t.Fatalf("expected annual plan, got %s", params.PlanType)
	}
}

func TestCreateSessionUnknownTypeRejected(t *testing.T) {
	svc := newTestService(t, &stubOracle{}, newMemoryRepo(), nil, time.Now().UTC())

	_, err := svc.CreateSession(context.Background(), uuid.New(), "user@example.com", CreateCheckoutRequest{
		Type: "donation",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateSessionUnknownPlanTypeRejected(t *testing.T) {
	oracle := &stubOracle{}
	svc := newTestService(t, oracle, newMemoryRepo(), nil, time.Now().UTC())

	_, err := svc.CreateSession(context.Background(), uuid.New(), "user@example.com", CreateCheckoutRequest{
		Type:     string(enums.TransactionTypeSubscription),
		PlanType: "weekly",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if oracle.createCalls != 0 {
		t.Fatalf("unknown plan must not reach the oracle")
	}
}

func TestCreateSessionEmptyPlanTypeDefaultsToMonthly(t *testing.T) {
	oracle := &stubOracle{
		createdSession: &billing.CheckoutSession{ID: "cs_sub", URL: "https://checkout.stripe.com/c/cs_sub"},
	}
	svc := newTestService(t, oracle, newMemoryRepo(), nil, time.Now().UTC())

	_, err := svc.CreateSession(context.Background(), uuid.New(), "user@example.com", CreateCheckoutRequest{
		Type: string(enums.TransactionTypeSubscription),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if params := oracle.createParams[0]; params.PlanType != enums.PlanTypeMonthly {
		t.Fatalf("expected monthly default, got %s", params.PlanType)
	}
}

func TestVerifyUnlockGrantsAndCompletes(t *testing.T) {
	now := time.Now().UTC()
	userID := uuid.New()
	oracle := &stubOracle{
		session: &billing.CheckoutSession{
			ID:          "cs_1",
			Paid:        true,
			Complete:    true,
			Type:        enums.TransactionTypeUnlock,
			AmountCents: 499,
			Currency:    "usd",
			UserID:      userID,
			SearchQuery: "  Dyson Airwrap ",
		},
	}
	repo := newMemoryRepo()
	inv := &stubInvalidator{}
	svc := newTestService(t, oracle, repo, inv, now)

	result, err := svc.VerifyAndRecord(context.Background(), userID, "user@example.com", "cs_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Verified || result.GrantType != enums.TransactionTypeUnlock {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, ok := repo.unlockSet[userID]["dyson airwrap"]; !ok {
		t.Fatalf("expected normalized unlock grant, got %v", repo.unlockSet[userID])
	}
	txn := repo.transactions["cs_1"]
	if txn == nil || txn.Status != enums.TransactionStatusCompleted || txn.CompletedAt == nil {
		t.Fatalf("expected completed transaction, got %+v", txn)
	}
	if len(inv.invalidated) != 1 || inv.invalidated[0] != userID {
		t.Fatalf("expected snapshot invalidation for %s, got %v", userID, inv.invalidated)
	}
}

func TestVerifySubscriptionActivatesGrant(t *testing.T) {
	now := time.Now().UTC()
	userID := uuid.New()
	periodEnd := now.Add(30 * 24 * time.Hour)
	oracle := &stubOracle{
		session: &billing.CheckoutSession{
			ID:             "cs_sub",
			Paid:           true,
			Type:           enums.TransactionTypeSubscription,
			AmountCents:    999,
			Currency:       "usd",
			UserID:         userID,
			SubscriptionID: "sub_1",
		},
		subscription: &billing.Subscription{
			ID:               "sub_1",
			Status:           enums.SubscriptionStatusActive,
			PriceID:          "price_1",
			PlanType:         enums.PlanTypeMonthly,
			CurrentPeriodEnd: periodEnd,
		},
	}
	repo := newMemoryRepo()
	svc := newTestService(t, oracle, repo, &stubInvalidator{}, now)

	result, err := svc.VerifyAndRecord(context.Background(), userID, "user@example.com", "cs_sub")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.GrantType != enums.TransactionTypeSubscription {
		t.Fatalf("unexpected grant type %s", result.GrantType)
	}

	grant := repo.subGrants["sub_1"]
	if grant == nil {
		t.Fatalf("expected subscription grant persisted")
	}
	if grant.Status != enums.SubscriptionStatusActive || !grant.CurrentPeriodEnd.Equal(periodEnd) {
		t.Fatalf("unexpected grant %+v", grant)
	}
	if grant.PriceID == nil || *grant.PriceID != "price_1" {
		t.Fatalf("expected price id recorded, got %v", grant.PriceID)
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	userID := uuid.New()
	oracle := &stubOracle{
		session: &billing.CheckoutSession{
			ID:          "cs_1",
			Paid:        true,
			Type:        enums.TransactionTypeUnlock,
			AmountCents: 499,
			UserID:      userID,
			SearchQuery: "dyson airwrap",
		},
	}
	repo := newMemoryRepo()
	svc := newTestService(t, oracle, repo, &stubInvalidator{}, now)

	for i := 0; i < 3; i++ {
		result, err := svc.VerifyAndRecord(context.Background(), userID, "user@example.com", "cs_1")
		if err != nil {
			t.Fatalf("verify attempt %d: %v", i, err)
		}
		if !result.Verified {
			t.Fatalf("attempt %d not verified", i)
		}
	}
	if len(repo.unlockSet[userID]) != 1 {
		t.Fatalf("expected exactly one unlock grant, got %v", repo.unlockSet[userID])
	}
	if len(repo.transactions) != 1 {
		t.Fatalf("expected exactly one transaction row, got %d", len(repo.transactions))
	}
}

func TestVerifyUnpaidSessionRejected(t *testing.T) {
	userID := uuid.New()
	oracle := &stubOracle{
		session: &billing.CheckoutSession{
			ID:     "cs_1",
			Paid:   false,
			Type:   enums.TransactionTypeUnlock,
			UserID: userID,
		},
	}
	repo := newMemoryRepo()
	svc := newTestService(t, oracle, repo, nil, time.Now().UTC())

	_, err := svc.VerifyAndRecord(context.Background(), userID, "user@example.com", "cs_1")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(repo.unlockSet[userID]) != 0 {
		t.Fatalf("unpaid session must grant nothing")
	}
}

func TestVerifyOwnershipMismatchForbidden(t *testing.T) {
	owner := uuid.New()
	caller := uuid.New()
	oracle := &stubOracle{
		session: &billing.CheckoutSession{
			ID:          "cs_1",
			Paid:        true,
			Type:        enums.TransactionTypeUnlock,
			UserID:      owner,
			SearchQuery: "dyson airwrap",
		},
	}
	repo := newMemoryRepo()
	svc := newTestService(t, oracle, repo, nil, time.Now().UTC())

	_, err := svc.VerifyAndRecord(context.Background(), caller, "intruder@example.com", "cs_1")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(repo.unlockSet[caller]) != 0 || len(repo.unlockSet[owner]) != 0 {
		t.Fatalf("mismatched verification must grant nothing")
	}
}

func TestVerifyOwnershipFallsBackToEmail(t *testing.T) {
	userID := uuid.New()
	oracle := &stubOracle{
		session: &billing.CheckoutSession{
			ID:            "cs_1",
			Paid:          true,
			Type:          enums.TransactionTypeUnlock,
			CustomerEmail: "User@Example.com",
			SearchQuery:   "dyson airwrap",
		},
	}
	repo := newMemoryRepo()
	svc := newTestService(t, oracle, repo, nil, time.Now().UTC())

	result, err := svc.VerifyAndRecord(context.Background(), userID, "user@example.com", "cs_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Verified {
		t.Fatalf("expected email-matched session to verify")
	}
}

func TestVerifyOracleDownIsDependencyError(t *testing.T) {
	oracle := &stubOracle{sessionErr: errors.New("connection refused")}
	svc := newTestService(t, oracle, newMemoryRepo(), nil, time.Now().UTC())

	_, err := svc.VerifyAndRecord(context.Background(), uuid.New(), "user@example.com", "cs_1")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

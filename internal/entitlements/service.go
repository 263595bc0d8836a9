package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/pkg/logger"
	"github.com/prodlens/prodlens-backend/pkg/metrics"
)

// Reconciler recomputes a snapshot from the billing oracle plus the durable
// unlock table. Implemented by internal/billing.
type Reconciler interface {
	Reconcile(ctx context.Context, userID uuid.UUID, email string) (*Snapshot, error)
}

// Service resolves entitlement snapshots for access checks: cache first,
// reconcile on miss, degrade to stale-or-basic when the oracle is down.
type Service interface {
	Status(ctx context.Context, userID uuid.UUID, email string) (*Snapshot, error)
	Refresh(ctx context.Context, userID uuid.UUID, email string) (*Snapshot, error)
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	cache      *SnapshotCache
	reconciler Reconciler
	logg       *logger.Logger
	metrics    *metrics.EntitlementMetrics
	now        func() time.Time
}

// ServiceParams bundles the dependencies required to build the entitlement service.
type ServiceParams struct {
	Cache      *SnapshotCache
	Reconciler Reconciler
	Logger     *logger.Logger
	Metrics    *metrics.EntitlementMetrics
	Now        func() time.Time
}

// NewService constructs an entitlement service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		cache:      params.Cache,
		reconciler: params.Reconciler,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        now,
	}, nil
}

// Status returns the verdict snapshot for the identity. Anonymous callers
// (nil user id) always evaluate as basic with no grants.
func (s *service) Status(ctx context.Context, userID uuid.UUID, email string) (*Snapshot, error) {
	if userID == uuid.Nil {
		return AnonymousSnapshot(s.now()), nil
	}

	cached, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logg.Warn(s.logg.WithUserID(ctx, userID.String()), "snapshot cache read failed")
		cached = nil
	}
	if cached != nil && s.cache.Fresh(cached, s.now()) {
		s.metrics.IncCacheHit()
		return cached, nil
	}
	s.metrics.IncCacheMiss()

	return s.reconcile(ctx, userID, email, cached)
}

// Refresh bypasses the cache freshness check and reconciles immediately.
// Used when the caller suspects staleness, e.g. returning from a payment
// redirect.
func (s *service) Refresh(ctx context.Context, userID uuid.UUID, email string) (*Snapshot, error) {
	if userID == uuid.Nil {
		return AnonymousSnapshot(s.now()), nil
	}
	cached, err := s.cache.Get(ctx, userID)
	if err != nil {
		cached = nil
	}
	return s.reconcile(ctx, userID, email, cached)
}

// Invalidate drops the user's cached snapshot.
func (s *service) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}
	return s.cache.Invalidate(ctx, userID)
}

func (s *service) reconcile(ctx context.Context, userID uuid.UUID, email string, fallback *Snapshot) (*Snapshot, error) {
	start := s.now()
	snap, err := s.reconciler.Reconcile(ctx, userID, email)
	s.metrics.ObserveReconcile(s.now().Sub(start))
	if err != nil {
		ctx = s.logg.WithUserID(ctx, userID.String())
		s.logg.Error(ctx, "entitlement reconciliation failed", err)
		if fallback != nil {
			s.metrics.IncStaleServed()
			stale := *fallback
			stale.Stale = true
			return &stale, nil
		}
		// Never fail open and never block rendering: no cache means the
		// restrictive basic verdict.
		basic := BasicSnapshot(userID, s.now())
		basic.Stale = true
		return basic, nil
	}

	if err := s.cache.Put(ctx, snap); err != nil {
		s.logg.Warn(s.logg.WithUserID(ctx, userID.String()), "snapshot cache write failed")
	}
	return snap, nil
}

package entitlements

import (
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/pkg/enums"
)

// Snapshot is the derived, cacheable projection of a user's grants. It is
// never a source of truth: it is recomputed from the billing oracle plus the
// durable unlock table, or served briefly from cache.
type Snapshot struct {
	UserID                uuid.UUID                `json:"user_id"`
	HasActiveSubscription bool                     `json:"has_active_subscription"`
	InGracePeriod         bool                     `json:"in_grace_period"`
	GraceRemaining        string                   `json:"grace_remaining,omitempty"`
	SubscriptionStatus    enums.SubscriptionStatus `json:"subscription_status,omitempty"`
	CurrentPeriodEnd      *time.Time               `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd     bool                     `json:"cancel_at_period_end,omitempty"`
	UnlockedQueries       []string                 `json:"unlocked_queries"`
	AccessLevel           enums.AccessLevel        `json:"access_level"`
	Stale                 bool                     `json:"stale"`
	RefreshedAt           time.Time                `json:"refreshed_at"`
}

// BasicSnapshot returns the restrictive default for a user with no grants.
func BasicSnapshot(userID uuid.UUID, now time.Time) *Snapshot {
	return &Snapshot{
		UserID:          userID,
		UnlockedQueries: []string{},
		AccessLevel:     enums.AccessLevelBasic,
		RefreshedAt:     now,
	}
}

// AnonymousSnapshot is the verdict for visitors with no identity: basic tier,
// no grants, nothing to reconcile.
func AnonymousSnapshot(now time.Time) *Snapshot {
	return BasicSnapshot(uuid.Nil, now)
}

// HasUnlock reports whether the normalized query is covered by a lifetime
// unlock. Empty queries never match.
func (s *Snapshot) HasUnlock(query string) bool {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return false
	}
	for _, q := range s.UnlockedQueries {
		if q == normalized {
			return true
		}
	}
	return false
}

// FullAccess reports whether the snapshot confers unrestricted access,
// either through an active subscription or the grace window.
func (s *Snapshot) FullAccess() bool {
	return s.HasActiveSubscription || s.InGracePeriod
}

package entitlements

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/pkg/enums"
)

func basicSnapshotWithUnlocks(queries ...string) *Snapshot {
	snap := BasicSnapshot(uuid.New(), time.Now().UTC())
	snap.UnlockedQueries = append(snap.UnlockedQueries, queries...)
	return snap
}

func subscribedSnapshot() *Snapshot {
	snap := BasicSnapshot(uuid.New(), time.Now().UTC())
	snap.HasActiveSubscription = true
	snap.AccessLevel = enums.AccessLevelPremium
	return snap
}

func TestFreeTierCapApplies(t *testing.T) {
	eval := NewEvaluator(DefaultFreeTierCap)
	snap := basicSnapshotWithUnlocks()

	if got := eval.MaxVisibleResults(snap, "standing desk"); got != 10 {
		t.Fatalf("expected cap 10, got %d", got)
	}
	if eval.CanAccessSearch(snap, "standing desk") {
		t.Fatalf("expected no search access for free tier")
	}
	if eval.CanAccessCategory(snap, "electronics") {
		t.Fatalf("expected no category access for free tier")
	}
}

func TestSubscriptionIsUnbounded(t *testing.T) {
	eval := NewEvaluator(DefaultFreeTierCap)
	snap := subscribedSnapshot()

	for _, query := range []string{"standing desk", "", "  anything  "} {
		if got := eval.MaxVisibleResults(snap, query); got != UnboundedResults {
			t.Fatalf("expected unbounded for %q, got %d", query, got)
		}
	}
	if !eval.CanAccessCategory(snap, "electronics") {
		t.Fatalf("expected category access with subscription")
	}
	if eval.ShouldShowUpgradeBanner(snap, "standing desk", 100, 100) {
		t.Fatalf("expected no banner with subscription")
	}
}

func TestUnlockedQueryIsUnbounded(t *testing.T) {
	eval := NewEvaluator(DefaultFreeTierCap)
	snap := basicSnapshotWithUnlocks("wireless headphones")

	if got := eval.MaxVisibleResults(snap, "wireless headphones"); got != UnboundedResults {
		t.Fatalf("expected unbounded for unlocked query, got %d", got)
	}
	if got := eval.MaxVisibleResults(snap, "other query"); got != 10 {
		t.Fatalf("expected cap for other query, got %d", got)
	}
	if eval.CanAccessCategory(snap, "electronics") {
		t.Fatalf("unlock must not open categories")
	}
}

func TestNormalizationRoundTrip(t *testing.T) {
	snap := basicSnapshotWithUnlocks(NormalizeQuery("  Wireless Headphones "))
	eval := NewEvaluator(DefaultFreeTierCap)

	if !eval.CanAccessSearch(snap, "wireless headphones") {
		t.Fatalf("expected normalized unlock to match lowercase query")
	}
	if !eval.CanAccessSearch(snap, "  WIRELESS HEADPHONES  ") {
		t.Fatalf("expected normalized unlock to match padded uppercase query")
	}
}

func TestEmptyQueryNeverMatches(t *testing.T) {
	snap := basicSnapshotWithUnlocks("")
	eval := NewEvaluator(DefaultFreeTierCap)

	if eval.CanAccessSearch(snap, "") {
		t.Fatalf("empty query must never grant access")
	}
	if eval.CanAccessSearch(snap, "   ") {
		t.Fatalf("whitespace query must never grant access")
	}
}

func TestUpgradeBanner(t *testing.T) {
	eval := NewEvaluator(DefaultFreeTierCap)
	snap := basicSnapshotWithUnlocks()

	if !eval.ShouldShowUpgradeBanner(snap, "q", 25, 10) {
		t.Fatalf("expected banner when results withheld")
	}
	if eval.ShouldShowUpgradeBanner(snap, "q", 5, 5) {
		t.Fatalf("expected no banner when nothing withheld")
	}
}

func TestVisibleCount(t *testing.T) {
	eval := NewEvaluator(DefaultFreeTierCap)
	snap := basicSnapshotWithUnlocks()

	if got := eval.VisibleCount(snap, "q", 25); got != 10 {
		t.Fatalf("expected 10 visible, got %d", got)
	}
	if got := eval.VisibleCount(snap, "q", 3); got != 3 {
		t.Fatalf("expected 3 visible, got %d", got)
	}
	if got := eval.VisibleCount(subscribedSnapshot(), "q", 25); got != 25 {
		t.Fatalf("expected 25 visible with subscription, got %d", got)
	}
}

func TestNewEvaluatorClampsCap(t *testing.T) {
	eval := NewEvaluator(0)
	snap := basicSnapshotWithUnlocks()
	if got := eval.MaxVisibleResults(snap, "q"); got != DefaultFreeTierCap {
		t.Fatalf("expected default cap, got %d", got)
	}
}

func TestNilSnapshotDenies(t *testing.T) {
	eval := NewEvaluator(DefaultFreeTierCap)
	if eval.CanAccessSearch(nil, "q") || eval.CanAccessCategory(nil, "c") {
		t.Fatalf("nil snapshot must deny")
	}
}

package entitlements

import (
	"testing"
	"time"

	"github.com/prodlens/prodlens-backend/pkg/db/models"
	"github.com/prodlens/prodlens-backend/pkg/enums"
)

func TestGracePeriodBoundary(t *testing.T) {
	now := time.Now().UTC()

	oneSecondLeft := &models.SubscriptionGrant{
		Status:           enums.SubscriptionStatusPastDue,
		CurrentPeriodEnd: now.Add(time.Second),
	}
	if !InGracePeriod(oneSecondLeft, now) {
		t.Fatalf("expected grace with period end one second in the future")
	}

	oneSecondPast := &models.SubscriptionGrant{
		Status:           enums.SubscriptionStatusPastDue,
		CurrentPeriodEnd: now.Add(-time.Second),
	}
	if InGracePeriod(oneSecondPast, now) {
		t.Fatalf("expected no grace with period end one second in the past")
	}
}

func TestGraceRequiresPastDueStatus(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(48 * time.Hour)

	for _, status := range []enums.SubscriptionStatus{
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusCanceled,
		enums.SubscriptionStatusUnpaid,
		enums.SubscriptionStatusIncomplete,
	} {
		grant := &models.SubscriptionGrant{Status: status, CurrentPeriodEnd: future}
		if InGracePeriod(grant, now) {
			t.Fatalf("status %s must not confer grace", status)
		}
	}

	if InGracePeriod(nil, now) {
		t.Fatalf("nil grant must not confer grace")
	}
}

func TestGraceRemaining(t *testing.T) {
	now := time.Now().UTC()
	grant := &models.SubscriptionGrant{
		Status:           enums.SubscriptionStatusPastDue,
		CurrentPeriodEnd: now.Add(36 * time.Hour),
	}

	if got := GraceRemaining(grant, now); got != 36*time.Hour {
		t.Fatalf("expected 36h remaining, got %s", got)
	}

	expired := &models.SubscriptionGrant{
		Status:           enums.SubscriptionStatusPastDue,
		CurrentPeriodEnd: now.Add(-time.Minute),
	}
	if got := GraceRemaining(expired, now); got != 0 {
		t.Fatalf("expected zero remaining when expired, got %s", got)
	}
}

func TestFormatGraceRemaining(t *testing.T) {
	cases := []struct {
		remaining time.Duration
		want      string
	}{
		{0, ""},
		{-time.Hour, ""},
		{5 * time.Minute, "less than 1 hour"},
		{59 * time.Minute, "less than 1 hour"},
		{time.Hour, "1 hour"},
		{90 * time.Minute, "1 hour"},
		{5 * time.Hour, "5 hours"},
		{24 * time.Hour, "1 day"},
		{72*time.Hour + time.Minute, "3 days"},
	}
	for _, tc := range cases {
		if got := FormatGraceRemaining(tc.remaining); got != tc.want {
			t.Fatalf("FormatGraceRemaining(%s) = %q, want %q", tc.remaining, got, tc.want)
		}
	}
}

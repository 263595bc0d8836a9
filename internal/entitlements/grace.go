package entitlements

import (
	"fmt"
	"time"

	"github.com/prodlens/prodlens-backend/pkg/db/models"
	"github.com/prodlens/prodlens-backend/pkg/enums"
)

// InGracePeriod reports whether a lapsed subscription still confers access:
// the payment failed (past_due) but the already-paid period has not ended.
// Once current_period_end passes, no special access applies and the next
// reconciliation demotes the user.
func InGracePeriod(grant *models.SubscriptionGrant, now time.Time) bool {
	if grant == nil {
		return false
	}
	return grant.Status == enums.SubscriptionStatusPastDue && grant.CurrentPeriodEnd.After(now)
}

// GraceRemaining returns the time left in the grace window, zero when the
// grant is not in grace.
func GraceRemaining(grant *models.SubscriptionGrant, now time.Time) time.Duration {
	if !InGracePeriod(grant, now) {
		return 0
	}
	return grant.CurrentPeriodEnd.Sub(now)
}

// FormatGraceRemaining renders a remaining duration at day/hour granularity
// for the payment-problem banner.
func FormatGraceRemaining(remaining time.Duration) string {
	if remaining <= 0 {
		return ""
	}
	if remaining >= 24*time.Hour {
		days := int(remaining / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	hours := int(remaining / time.Hour)
	switch {
	case hours < 1:
		// Never round a few minutes up to an hour; the banner must not
		// promise more time than the window actually holds.
		return "less than 1 hour"
	case hours == 1:
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}

package enums

import "fmt"

// PlanType identifies the recurring plan attached to a subscription grant.
type PlanType string

const (
	PlanTypeMonthly PlanType = "monthly"
	PlanTypeAnnual  PlanType = "annual"
)

// ParsePlanType validates a wire value against the known plans.
func ParsePlanType(value string) (PlanType, error) {
	switch PlanType(value) {
	case PlanTypeMonthly:
		return PlanTypeMonthly, nil
	case PlanTypeAnnual:
		return PlanTypeAnnual, nil
	}
	return "", fmt.Errorf("invalid plan type %q", value)
}

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PlanType) IsValid() bool {
	return p == PlanTypeMonthly || p == PlanTypeAnnual
}

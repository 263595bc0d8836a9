package checkout

import (
	"github.com/prodlens/prodlens-backend/pkg/enums"
)

// CreateCheckoutRequest is the client payload for opening a checkout. Price
// is intentionally absent; a tampered client must not pick its own amount.
type CreateCheckoutRequest struct {
	Type     string `json:"type" validate:"required,oneof=subscription unlock"`
	Query    string `json:"query,omitempty"`
	PlanType string `json:"plan_type,omitempty" validate:"omitempty,oneof=monthly annual"`
}

// CheckoutResponse carries the hosted-checkout redirect target.
type CheckoutResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// VerifyRequest identifies the session to verify. The id alone proves
// nothing; the session is re-fetched from the billing provider.
type VerifyRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// VerificationResult reports the outcome of server-side session verification.
type VerificationResult struct {
	Verified  bool                  `json:"verified"`
	GrantType enums.TransactionType `json:"grantType"`
}

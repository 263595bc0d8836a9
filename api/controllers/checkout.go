package controllers

import (
	"net/http"

	"github.com/prodlens/prodlens-backend/api/middleware"
	"github.com/prodlens/prodlens-backend/api/responses"
	"github.com/prodlens/prodlens-backend/api/validators"
	"github.com/prodlens/prodlens-backend/internal/checkout"
	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
	"github.com/prodlens/prodlens-backend/pkg/logger"
)

// CheckoutCreateSession opens a hosted checkout and returns the redirect URL.
func CheckoutCreateSession(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var body checkout.CreateCheckoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSession(r.Context(), middleware.UserIDFromContext(r.Context()), middleware.EmailFromContext(r.Context()), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CheckoutVerify confirms payment server-side and records the grant.
func CheckoutVerify(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var body checkout.VerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.VerifyAndRecord(r.Context(), middleware.UserIDFromContext(r.Context()), middleware.EmailFromContext(r.Context()), body.SessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

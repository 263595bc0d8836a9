package controllers

import (
	"net/http"

	"github.com/prodlens/prodlens-backend/api/middleware"
	"github.com/prodlens/prodlens-backend/api/responses"
	"github.com/prodlens/prodlens-backend/internal/entitlements"
	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
	"github.com/prodlens/prodlens-backend/pkg/logger"
)

// EntitlementStatus returns the viewer's snapshot. Anonymous viewers get a
// restrictive basic verdict rather than an error; the page always renders.
func EntitlementStatus(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		snapshot, err := svc.Status(r.Context(), middleware.UserIDFromContext(r.Context()), middleware.EmailFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// EntitlementRefresh forces reconciliation against the billing provider,
// bypassing the cached snapshot.
func EntitlementRefresh(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}

		snapshot, err := svc.Refresh(r.Context(), middleware.UserIDFromContext(r.Context()), middleware.EmailFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prodlens/prodlens-backend/api/middleware"
	"github.com/prodlens/prodlens-backend/api/responses"
	"github.com/prodlens/prodlens-backend/api/validators"
	"github.com/prodlens/prodlens-backend/internal/entitlements"
	"github.com/prodlens/prodlens-backend/internal/products"
	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
	"github.com/prodlens/prodlens-backend/pkg/logger"
	"github.com/prodlens/prodlens-backend/pkg/pagination"
)

const maxQueryLen = 200

// ProductSearch serves the gated search surface. The snapshot decides how
// many results cross the boundary; anonymous viewers get the free cap.
func ProductSearch(productSvc products.Service, entitlementSvc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if productSvc == nil || entitlementSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "search unavailable"))
			return
		}

		query := validators.SanitizeString(r.URL.Query().Get("q"), maxQueryLen)

		snapshot, err := entitlementSvc.Status(r.Context(), middleware.UserIDFromContext(r.Context()), middleware.EmailFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := productSvc.Search(r.Context(), snapshot, query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ProductCategory pages a category listing for premium viewers.
func ProductCategory(productSvc products.Service, entitlementSvc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if productSvc == nil || entitlementSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		category := validators.SanitizeString(chi.URLParam(r, "category"), maxQueryLen)
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := entitlementSvc.Status(r.Context(), middleware.UserIDFromContext(r.Context()), middleware.EmailFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := productSvc.BrowseCategory(r.Context(), snapshot, category, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ProductCategories lists the catalog's category names.
func ProductCategories(productSvc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if productSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		categories, err := productSvc.ListCategories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string][]string{"categories": categories})
	}
}

package products

import (
	"context"
	"fmt"

	"github.com/prodlens/prodlens-backend/internal/entitlements"
	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
	"github.com/prodlens/prodlens-backend/pkg/logger"
	"github.com/prodlens/prodlens-backend/pkg/pagination"
)

// Service serves the gated catalog surfaces. Truncation happens here, on the
// server, before anything crosses the boundary; the evaluator's verdict is
// the enforcement point.
type Service interface {
	Search(ctx context.Context, snapshot *entitlements.Snapshot, query string) (*SearchResult, error)
	BrowseCategory(ctx context.Context, snapshot *entitlements.Snapshot, category string, page pagination.Params) (*CategoryPage, error)
	ListCategories(ctx context.Context) ([]string, error)
}

type service struct {
	repo      Repository
	evaluator entitlements.Evaluator
	logg      *logger.Logger
}

// ServiceParams bundles the dependencies for the product service.
type ServiceParams struct {
	Repo      Repository
	Evaluator entitlements.Evaluator
	Logger    *logger.Logger
}

// NewService constructs a product service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:      params.Repo,
		evaluator: params.Evaluator,
		logg:      params.Logger,
	}, nil
}

// Search runs the query and truncates the result page to what the snapshot
// allows. TotalCount stays honest so the client can say "showing N of M".
func (s *service) Search(ctx context.Context, snapshot *entitlements.Snapshot, query string) (*SearchResult, error) {
	normalized := entitlements.NormalizeQuery(query)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search query is required")
	}

	items, err := s.repo.Search(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "search products")
	}

	total := len(items)
	visible := s.evaluator.VisibleCount(snapshot, normalized, total)
	return &SearchResult{
		Query:             normalized,
		Items:             items[:visible],
		TotalCount:        total,
		VisibleCount:      visible,
		ShowUpgradeBanner: s.evaluator.ShouldShowUpgradeBanner(snapshot, normalized, total, visible),
	}, nil
}

// BrowseCategory pages a category listing for premium viewers.
func (s *service) BrowseCategory(ctx context.Context, snapshot *entitlements.Snapshot, category string, page pagination.Params) (*CategoryPage, error) {
	if category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}
	if !s.evaluator.CanAccessCategory(snapshot, category) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "category browsing requires a subscription")
	}
	if _, err := pagination.ParseCursor(page.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	items, nextCursor, err := s.repo.ListByCategory(ctx, category, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list category")
	}
	return &CategoryPage{
		Category:   category,
		Items:      items,
		NextCursor: nextCursor,
	}, nil
}

// ListCategories is ungated; category names alone reveal nothing paid.
func (s *service) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list categories")
	}
	return categories, nil
}

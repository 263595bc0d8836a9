package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens-backend/api/middleware"
	"github.com/prodlens/prodlens-backend/internal/entitlements"
	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
)

type stubEntitlementService struct {
	statusCalls  int
	refreshCalls int
	lastUserID   uuid.UUID
	lastEmail    string
	snapshot     *entitlements.Snapshot
	err          error
}

func (s *stubEntitlementService) Status(ctx context.Context, userID uuid.UUID, email string) (*entitlements.Snapshot, error) {
	s.statusCalls++
	s.lastUserID = userID
	s.lastEmail = email
	if s.err != nil {
		return nil, s.err
	}
	if s.snapshot != nil {
		return s.snapshot, nil
	}
	return entitlements.BasicSnapshot(userID, time.Now().UTC()), nil
}

func (s *stubEntitlementService) Refresh(ctx context.Context, userID uuid.UUID, email string) (*entitlements.Snapshot, error) {
	s.refreshCalls++
	s.lastUserID = userID
	s.lastEmail = email
	if s.err != nil {
		return nil, s.err
	}
	return entitlements.BasicSnapshot(userID, time.Now().UTC()), nil
}

func (s *stubEntitlementService) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return nil
}

func TestEntitlementStatus(t *testing.T) {
	t.Run("authenticated user gets own snapshot", func(t *testing.T) {
		userID := uuid.New()
		stub := &stubEntitlementService{}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/entitlements", nil)
		req = req.WithContext(middleware.WithIdentity(req.Context(), userID, "user@example.com"))
		rec := httptest.NewRecorder()

		EntitlementStatus(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.lastUserID != userID || stub.lastEmail != "user@example.com" {
			t.Fatalf("expected identity forwarded, got %s %q", stub.lastUserID, stub.lastEmail)
		}
	})

	t.Run("anonymous viewer still gets a verdict", func(t *testing.T) {
		stub := &stubEntitlementService{}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/entitlements", nil)
		rec := httptest.NewRecorder()

		EntitlementStatus(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for anonymous status, got %d", rec.Code)
		}
		if stub.lastUserID != uuid.Nil {
			t.Fatalf("expected nil user id for anonymous request, got %s", stub.lastUserID)
		}

		var envelope struct {
			Data entitlements.Snapshot `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if envelope.Data.HasActiveSubscription {
			t.Fatalf("anonymous snapshot must be basic tier")
		}
	})

	t.Run("oracle outage maps to 503", func(t *testing.T) {
		stub := &stubEntitlementService{err: pkgerrors.New(pkgerrors.CodeDependency, "billing provider unavailable")}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/entitlements", nil)
		rec := httptest.NewRecorder()

		EntitlementStatus(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestEntitlementRefresh(t *testing.T) {
	userID := uuid.New()
	stub := &stubEntitlementService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entitlements/refresh", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), userID, "user@example.com"))
	rec := httptest.NewRecorder()

	EntitlementRefresh(stub, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.refreshCalls != 1 || stub.statusCalls != 0 {
		t.Fatalf("expected one refresh call bypassing the cache path, got refresh=%d status=%d", stub.refreshCalls, stub.statusCalls)
	}
}

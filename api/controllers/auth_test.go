package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	authsvc "github.com/prodlens/prodlens-backend/internal/auth"
	"github.com/prodlens/prodlens-backend/internal/users"
	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
)

type stubAuthService struct {
	registered *authsvc.RegisterRequest
	loggedIn   *authsvc.LoginRequest
	err        error
}

func (s *stubAuthService) Register(ctx context.Context, req authsvc.RegisterRequest) (*authsvc.AuthResponse, error) {
	s.registered = &req
	if s.err != nil {
		return nil, s.err
	}
	return &authsvc.AuthResponse{
		AccessToken: "token",
		User: &users.UserDTO{
			ID:        uuid.New(),
			Email:     req.Email,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		},
	}, nil
}

func (s *stubAuthService) Login(ctx context.Context, req authsvc.LoginRequest) (*authsvc.AuthResponse, error) {
	s.loggedIn = &req
	if s.err != nil {
		return nil, s.err
	}
	return &authsvc.AuthResponse{AccessToken: "token"}, nil
}

func TestAuthRegister(t *testing.T) {
	t.Run("creates account", func(t *testing.T) {
		body := `{"email":"new@example.com","password":"supersecret","display_name":"New User"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		stub := &stubAuthService{}
		AuthRegister(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.registered == nil || stub.registered.Email != "new@example.com" {
			t.Fatalf("expected register call with request body, got %+v", stub.registered)
		}
	})

	t.Run("rejects invalid body", func(t *testing.T) {
		body := `{"email":"not-an-email","password":"short"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		stub := &stubAuthService{}
		AuthRegister(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if stub.registered != nil {
			t.Fatalf("expected service to be skipped for invalid body")
		}
	})

	t.Run("maps conflict errors", func(t *testing.T) {
		body := `{"email":"dupe@example.com","password":"supersecret","display_name":"Dupe"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		stub := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeConflict, "email already registered")}
		AuthRegister(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestAuthLogin(t *testing.T) {
	t.Run("returns session", func(t *testing.T) {
		body := `{"email":"user@example.com","password":"supersecret"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		stub := &stubAuthService{}
		AuthLogin(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("maps bad credentials", func(t *testing.T) {
		body := `{"email":"user@example.com","password":"wrong-pass"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		stub := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
		AuthLogin(stub, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

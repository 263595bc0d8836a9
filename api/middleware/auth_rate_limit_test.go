package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/prodlens/prodlens-backend/pkg/errors"
)

func loginRequest(email, remoteAddr string) *http.Request {
	body := `{"email":"` + email + `","password":"hunter2hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.RemoteAddr = remoteAddr
	return req
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return payload.Error.Code
}

func TestAuthRateLimit_DisabledPolicyPassesThrough(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", 0, 0, 0)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := AuthRateLimit(policy, newCountingRateStore(), nil)(next)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("research@prodlens.dev", "10.0.0.1:443"))
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected passthrough, got %d", i, rec.Code)
		}
	}
}

func TestAuthRateLimit_BodyStaysReadableDownstream(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 5, 5)
	handler := AuthRateLimit(policy, newCountingRateStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if !strings.Contains(string(body), "research@prodlens.dev") {
			t.Fatalf("downstream lost the body: %s", string(body))
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("research@prodlens.dev", "10.0.0.1:443"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRateLimit_RepeatedLoginsForOneAccountBlocked(t *testing.T) {
	store := newCountingRateStore()
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 3)
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Same mailbox from rotating IPs: the email bucket still fills up.
	addrs := []string{"10.0.0.1:443", "10.0.0.2:443", "10.0.0.3:443", "10.0.0.4:443"}
	for i, addr := range addrs {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("target@prodlens.dev", addr))

		if i < 3 && rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected success under limit, got %d", i, rec.Code)
		}
		if i == 3 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429 on fourth attempt, got %d", rec.Code)
			}
			if code := decodeErrorCode(t, rec.Body.Bytes()); code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected error code %s", code)
			}
		}
	}
}

func TestAuthRateLimit_EmailVariantsShareOneBucket(t *testing.T) {
	store := newCountingRateStore()
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 2)
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	variants := []string{"Target@Prodlens.dev", " target@prodlens.dev ", "TARGET@PRODLENS.DEV"}
	last := httptest.NewRecorder()
	for _, email := range variants {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, loginRequest(email, "10.0.0.1:443"))
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("case and whitespace variants should count together, got %d", last.Code)
	}
}

func TestAuthRateLimit_SignupFloodFromOneAddressBlocked(t *testing.T) {
	store := newCountingRateStore()
	policy := NewAuthRateLimitPolicy("register", time.Minute, 2, 0)
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Distinct emails per request: only the IP counter applies.
	emails := []string{"a@prodlens.dev", "b@prodlens.dev", "c@prodlens.dev"}
	for i, email := range emails {
		body := `{"email":"` + email + `","password":"hunter2hunter2"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		req.RemoteAddr = "10.0.0.1:443"

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 2 && rec.Code != http.StatusOK {
			t.Fatalf("signup %d: expected success, got %d", i, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected third signup from one address blocked, got %d", rec.Code)
		}
	}

	if _, ok := store.counts["rl:ip:register:203.0.113.9"]; !ok {
		t.Fatal("expected the forwarded client address to be the counted key")
	}
}

func TestAuthRateLimit_StoreOutageReportsDependency(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 1, 0)
	handler := AuthRateLimit(policy, failingRateStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run when the limiter store is down")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest("research@prodlens.dev", "10.0.0.1:443"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != string(pkgerrors.CodeDependency) {
		t.Fatalf("unexpected error code %s", code)
	}
}

type countingRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingRateStore() *countingRateStore {
	return &countingRateStore{counts: map[string]int64{}}
}

func (s *countingRateStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

type failingRateStore struct{}

func (failingRateStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, errors.New("redis: connection refused")
}

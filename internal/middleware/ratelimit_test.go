package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRateLimiterLocalWindow(t *testing.T) {
	rl := NewRateLimiter(nil, "test", 2, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	if !rl.Allow(ctx, "user") || !rl.Allow(ctx, "user") {
		t.Fatal("first two hits must pass")
	}
	if rl.Allow(ctx, "user") {
		t.Fatal("third hit in window must be limited")
	}
	if !rl.Allow(ctx, "other") {
		t.Fatal("keys are independent")
	}

	now = now.Add(time.Minute)
	if !rl.Allow(ctx, "user") {
		t.Fatal("new window must reset the counter")
	}
}

func TestRateLimiterMiddlewareReturns429(t *testing.T) {
	rl := NewRateLimiter(nil, "test", 1, time.Minute)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	userID := uuid.New()
	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/chat/message", nil)
		req = req.WithContext(WithIdentity(req.Context(), userID, "member"))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if code := do(); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}

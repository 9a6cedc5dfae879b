package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/creditswap/creditswap-api/internal/config"
	"github.com/creditswap/creditswap-api/internal/domain/auth"
	"github.com/creditswap/creditswap-api/internal/domain/chat"
	"github.com/creditswap/creditswap-api/internal/domain/completion"
	"github.com/creditswap/creditswap-api/internal/domain/credit"
	"github.com/creditswap/creditswap-api/internal/domain/listing"
	"github.com/creditswap/creditswap-api/internal/domain/notification"
	"github.com/creditswap/creditswap-api/internal/domain/offer"
	"github.com/creditswap/creditswap-api/internal/domain/payment"
)

func testHandlers() *handlers {
	return &handlers{
		auth:         auth.NewHandler(nil),
		listing:      listing.NewHandler(nil),
		offer:        offer.NewHandler(nil),
		completion:   completion.NewHandler(nil),
		chat:         chat.NewHandler(nil, nil, nil, nil),
		credit:       credit.NewHandler(nil),
		payment:      payment.NewHandler(payment.NewService(nil, nil, nil, nil)),
		notification: notification.NewHandler(nil),
	}
}

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func TestRouterRegistersAPI(t *testing.T) {
	r := newRouter(&config.Config{}, testHandlers(), denyAll, healthHandler())

	routes := map[string]bool{}
	err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes[method+" "+strings.TrimSuffix(route, "/")] = true
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	for _, want := range []string{
		"POST /api/v1/auth/register",
		"POST /api/v1/auth/login",
		"GET /api/v1/auth/me",
		"GET /api/v1/listings",
		"PUT /api/v1/listings/{id}/complete",
		"GET /api/v1/listings/{id}/offers",
		"POST /api/v1/offers/{listingId}",
		"POST /api/v1/offers/{id}/accept",
		"POST /api/v1/chat/message",
		"PUT /api/v1/chat/{id}/messages",
		"GET /api/v1/credits/balance",
		"GET /api/v1/payments/packages",
		"POST /api/v1/payments/purchase",
		"GET /api/v1/notifications",
		"GET /health",
	} {
		if !routes[want] {
			t.Errorf("route %q not registered", want)
		}
	}
}

func TestRouterAuthBoundaries(t *testing.T) {
	r := newRouter(&config.Config{}, testHandlers(), denyAll, healthHandler())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/payments/packages", http.StatusOK},
		{http.MethodPost, "/api/v1/payments/purchase", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/listings", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/auth/me", http.StatusUnauthorized},
		{http.MethodGet, "/ws", http.StatusUnauthorized},
		{http.MethodGet, "/health", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	up := healthCheck{name: "database", ping: func(context.Context) error { return nil }}
	down := healthCheck{name: "redis", ping: func(context.Context) error { return errors.New("connection refused") }}

	t.Run("healthy", func(t *testing.T) {
		rr := httptest.NewRecorder()
		healthHandler(up)(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		rr := httptest.NewRecorder()
		healthHandler(up, down)(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}

		var out struct {
			Data map[string]string `json:"data"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if out.Data["database"] != "up" || out.Data["redis"] != "down" || out.Data["status"] != "degraded" {
			t.Fatalf("unexpected body %v", out.Data)
		}
	})

	t.Run("redis not configured", func(t *testing.T) {
		rr := httptest.NewRecorder()
		healthHandler(redisCheck(nil))(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})
}

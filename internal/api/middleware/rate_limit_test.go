package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

func TestRateLimit_AllowsHealthCheckUnthrottled(t *testing.T) {
	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatalf("expected no rate-limit headers on health check")
	}
}

func TestRateLimit_BurstExceededReturns429(t *testing.T) {
	defaultAPIRateLimiter = &apiRateLimiter{
		get:      make(map[string]*rate.Limiter),
		standard: make(map[string]*rate.Limiter),
	}

	handler := RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < rateLimitStandardBurst+5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/runs/start", nil)
		req.RemoteAddr = "10.0.0.5:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after exceeding burst", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on 429 response")
	}
}

func TestGetClientIP_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/cars", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.RemoteAddr = "10.0.0.1:5555"

	if ip := getClientIP(req); ip != "203.0.113.7" {
		t.Fatalf("getClientIP = %q, want 203.0.113.7", ip)
	}
}

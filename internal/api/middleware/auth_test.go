package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/llmrace/llmrace-backend/internal/auth"
	"github.com/llmrace/llmrace-backend/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_DisabledModeAllowsAll(t *testing.T) {
	cfg := &config.Config{AuthMode: "disabled", AuthJWTSecret: "s3cret"}
	handler := RequireAuth(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/runs/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAuth_RequiredModeRejectsMissingToken(t *testing.T) {
	cfg := &config.Config{AuthMode: "required", AuthJWTSecret: "s3cret"}
	handler := RequireAuth(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/runs/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_RequiredModeAcceptsValidToken(t *testing.T) {
	cfg := &config.Config{AuthMode: "required", AuthJWTSecret: "s3cret"}
	token, err := auth.IssueToken(cfg.AuthJWTSecret)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	handler := RequireAuth(cfg)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/runs/abc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireAuth_HealthAndMetricsAlwaysOpen(t *testing.T) {
	cfg := &config.Config{AuthMode: "required", AuthJWTSecret: "s3cret"}
	handler := RequireAuth(cfg)(okHandler())

	for _, path := range []string{"/api/health", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("path %s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestRequireAuth_OptionalModeAllowsInvalidToken(t *testing.T) {
	cfg := &config.Config{AuthMode: "optional", AuthJWTSecret: "s3cret"}
	handler := RequireAuth(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/runs/abc", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

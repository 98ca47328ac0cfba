package middleware

import (
	"net/http"
	"strings"

	"github.com/llmrace/llmrace-backend/internal/auth"
	"github.com/llmrace/llmrace-backend/internal/config"
)

// RequireAuth enforces cfg.AuthMode (disabled | optional | required) with a single shared
// JWT secret — there is no user table in this domain, so a valid bearer token just proves
// the caller holds the operator secret. Health and metrics stay open regardless of mode.
func RequireAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			mode := strings.ToLower(strings.TrimSpace(cfg.AuthMode))
			if mode == "" {
				mode = "disabled"
			}
			if mode == "disabled" {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearer(r)
			if token == "" {
				if mode == "required" {
					denyUnauthorized(w, "authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			claims, err := auth.ValidateToken(cfg.AuthJWTSecret, token)
			if err != nil {
				if mode == "required" {
					denyUnauthorized(w, "invalid or expired token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := auth.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func denyUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

func extractBearer(r *http.Request) string {
	s := r.Header.Get("Authorization")
	if s == "" {
		return r.URL.Query().Get("token")
	}
	const prefix = "Bearer "
	if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return strings.TrimSpace(s[len(prefix):])
	}
	return ""
}

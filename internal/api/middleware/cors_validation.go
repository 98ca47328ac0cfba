package middleware

import (
	"log/slog"
	"net/http"

	"github.com/llmrace/llmrace-backend/internal/config"
)

// CORSValidation logs a warning once per request if ALLOWED_ORIGINS is wildcarded — the
// race engine's API carries Connection base URLs and API keys, so an open CORS policy is
// worth flagging even though rs/cors (wired in main.go) is what actually enforces it.
func CORSValidation(cfg *config.Config, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg != nil {
				for _, origin := range cfg.AllowedOrigins {
					if origin == "*" || origin == ".*" {
						log.Warn("CORS wildcard detected",
							"origin", origin,
							"risk", "allows any origin to reach the API",
							"recommendation", "use specific origins in ALLOWED_ORIGINS",
						)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Per-IP rate limiting for the HTTP API. Run-start and judge requests are expensive (they
// fan out to provider endpoints), so mutating requests get a tighter bucket than reads.
const (
	rateLimitStandardPerMin = 60
	rateLimitStandardBurst  = 60
	rateLimitGetPerMin      = 120
	rateLimitGetBurst       = 120
)

type rateLimitTier int

const (
	tierGet rateLimitTier = iota
	tierStandard
)

func (t rateLimitTier) limiterConfig() (rate.Limit, int) {
	if t == tierGet {
		return rate.Limit(float64(rateLimitGetPerMin) / 60.0), rateLimitGetBurst
	}
	return rate.Limit(float64(rateLimitStandardPerMin) / 60.0), rateLimitStandardBurst
}

func (t rateLimitTier) limitHeader() int {
	if t == tierGet {
		return rateLimitGetPerMin
	}
	return rateLimitStandardPerMin
}

// apiRateLimiter holds per-IP limiters per tier.
type apiRateLimiter struct {
	mu       sync.Mutex
	get      map[string]*rate.Limiter
	standard map[string]*rate.Limiter
}

var defaultAPIRateLimiter = &apiRateLimiter{
	get:      make(map[string]*rate.Limiter),
	standard: make(map[string]*rate.Limiter),
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		addr = addr[:idx]
	}
	return addr
}

func tierForRequest(r *http.Request) rateLimitTier {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return tierGet
	}
	return tierStandard
}

func (l *apiRateLimiter) getLimiter(ip string, t rateLimitTier) *rate.Limiter {
	limit, burst := t.limiterConfig()
	m := l.standard
	if t == tierGet {
		m = l.get
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := m[ip]; ok {
		return lim
	}
	lim := rate.NewLimiter(limit, burst)
	m[ip] = lim
	return lim
}

// RateLimit returns middleware that limits requests per IP. Excludes /api/health and
// /metrics. Token bucket: 60/min for mutating requests, 120/min for GET/HEAD. Returns 429
// with Retry-After and X-RateLimit-* headers.
func RateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			ip := getClientIP(r)
			tier := tierForRequest(r)
			limiter := defaultAPIRateLimiter.getLimiter(ip, tier)
			reservation := limiter.Reserve()
			if !reservation.OK() {
				writeRateLimited(w, tier, 60*time.Second)
				return
			}
			delay := reservation.Delay()
			if delay > 0 {
				reservation.Cancel()
				writeRateLimited(w, tier, delay)
				return
			}
			tokens := int(limiter.Tokens())
			if tokens < 0 {
				tokens = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(tier.limitHeader()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(tokens))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, tier rateLimitTier, retryAfter time.Duration) {
	retrySec := int(retryAfter.Seconds()) + 1
	if retrySec > 60 {
		retrySec = 60
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retrySec))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(tier.limitHeader()))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(retryAfter).Unix(), 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"too many requests, retry later"}`))
}

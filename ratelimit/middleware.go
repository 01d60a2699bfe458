package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ruteri/certificate-trust-backend/metrics"
)

// Policy is the budget of one route group.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// KeyFunc derives the limiter key of a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by remote address. Run chi's RealIP middleware first
// when the server sits behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the policy budget with 429. Limiter
// failures let the request through.
func Middleware(limiter Limiter, policy Policy, key KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), policy.Name+":"+key(r), policy.Limit, policy.Window)
			if err != nil {
				log.Warn("Rate limiter unavailable", slog.String("policy", policy.Name), "err", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			}

			if !decision.Allowed {
				metrics.RateLimited.WithLabelValues(policy.Name).Inc()
				retryAfter := max(int(time.Until(decision.ResetAt).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authkit/internal/logger"
)

// Limiter decides whether one more request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit rejects requests over the limit with 429, keyed by scope and
// client IP. A limiter error yields 503.
func RateLimit(l Limiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), scope+":"+clientIP(r.RemoteAddr))
			if err != nil {
				logger.From(r.Context()).Error("rate limiter unavailable", logger.Op(scope), logger.Err(err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", "60")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

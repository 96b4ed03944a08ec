package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/MrEthical07/authkit/internal/logger"
	"github.com/MrEthical07/authkit/secrets"
)

// ClientKeyHeader carries the shared key of trusted callers.
const ClientKeyHeader = "X-Client-Key"

// RequireClientKey compares the ClientKeyHeader value against the secret
// called name. Wrap src in a secrets.Cache so the source is not hit per
// request. A source failure, or a missing src or name, rejects the request.
func RequireClientKey(src secrets.Source, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if src == nil || name == "" {
				logger.From(r.Context()).Error("client key gate not configured")
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			presented := r.Header.Get(ClientKeyHeader)
			if presented == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			expected, err := src.GetSecret(r.Context(), name)
			if err != nil || expected == "" {
				logger.From(r.Context()).Error("client key unavailable", logger.Err(err))
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authkit"
)

type payloadContextKey struct{}

// PayloadParser verifies access tokens. *authkit.Engine implements it.
type PayloadParser interface {
	ParsePayload(ctx context.Context, accessToken string) (*authkit.Payload, error)
}

// PayloadFromContext returns the payload stored by Guard.
func PayloadFromContext(ctx context.Context) (*authkit.Payload, bool) {
	p, ok := ctx.Value(payloadContextKey{}).(*authkit.Payload)
	return p, ok
}

// Guard rejects requests without a valid bearer access token.
func Guard(parser PayloadParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			payload, err := parser.ParsePayload(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), payloadContextKey{}, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/internal/logger"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestContext stores the client IP, user agent and a request-scoped logger
// in the request context. Mount it after chi's RequestID and RealIP.
func RequestContext(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientIP(r.RemoteAddr)
			ctx = authkit.WithClientIP(ctx, ip)
			ctx = authkit.WithUserAgent(ctx, r.UserAgent())
			ctx = logger.ToContext(ctx, log.With(
				logger.RequestID(chimw.GetReqID(ctx)),
				logger.ClientIP(ip),
			))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// AccessLog writes one info line per request with status and duration.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.From(r.Context()).Info("request",
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(ww.Status()),
			logger.Duration(time.Since(start)),
		)
	})
}

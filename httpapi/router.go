// Package httpapi exposes an authkit.Engine over HTTP with chi.
package httpapi

import (
	"net/http"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/middleware"
	"github.com/MrEthical07/authkit/secrets"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options configures NewRouter. Engine is required.
type Options struct {
	Engine *authkit.Engine
	Logger *zap.Logger

	// ClientKeys and ClientKeyName back the X-Client-Key gate. Without them
	// every gated route answers 503 unless AllowUnauthenticated is set.
	ClientKeys           secrets.Source
	ClientKeyName        string
	AllowUnauthenticated bool

	// Gatherer backs /metrics. Nil omits the route.
	Gatherer prometheus.Gatherer

	// Ready reports backend health for /healthz. Nil always reports ok.
	Ready func(r *http.Request) error

	// Limiter throttles credential and code submissions per client IP.
	Limiter middleware.Limiter
}

type handler struct {
	engine *authkit.Engine
	log    *zap.Logger
	ready  func(r *http.Request) error
}

// NewRouter builds the service routes.
func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{engine: opts.Engine, log: log.Named("http"), ready: opts.Ready}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestContext(h.log))
	r.Use(middleware.AccessLog)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/.well-known/jwks.json", h.jwks)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if !opts.AllowUnauthenticated {
			r.Use(middleware.RequireClientKey(opts.ClientKeys, opts.ClientKeyName))
		}

		throttle := func(scope string) func(http.Handler) http.Handler {
			if opts.Limiter == nil {
				return func(next http.Handler) http.Handler { return next }
			}
			return middleware.RateLimit(opts.Limiter, scope)
		}

		r.Route("/auth", func(r chi.Router) {
			r.With(throttle("login")).Post("/login", h.login)
			r.Post("/refresh-token", h.refresh)
			r.Post("/revoke", h.revoke)
			r.Post("/revoke-all", h.revokeAll)
			r.Post("/get-payload", h.getPayload)
		})

		r.Route("/mfa", func(r chi.Router) {
			r.With(throttle("mfa")).Post("/totp/verify", h.confirmWith(authkit.FactorTOTP))
			r.With(throttle("mfa")).Post("/recovery/verify", h.confirmWith(authkit.FactorRecovery))

			// Enrollment and factor management act for the bearer only.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Guard(h.engine))
				r.Post("/totp/setup", h.totpSetup)
				r.With(throttle("mfa")).Post("/totp/activate", h.totpActivate)
				r.Post("/recovery/generate", h.recoveryGenerate)
				r.Get("/factors", h.listFactors)
				r.Delete("/factors/{factorID}", h.revokeFactor)
			})
		})
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r); err != nil {
			h.log.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) jwks(w http.ResponseWriter, r *http.Request) {
	set, err := h.engine.JWKS(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, set)
}

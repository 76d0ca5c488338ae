package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MotionAge/sn-sub000/internal/common"
	"github.com/MotionAge/sn-sub000/internal/config"
	"github.com/MotionAge/sn-sub000/internal/document"
	"github.com/MotionAge/sn-sub000/internal/health"
	"github.com/MotionAge/sn-sub000/internal/obs"
	"github.com/MotionAge/sn-sub000/internal/payment"
	"github.com/MotionAge/sn-sub000/internal/ratelimit"
	"github.com/MotionAge/sn-sub000/internal/security"
	"github.com/MotionAge/sn-sub000/internal/settlement"
)

type routes struct {
	logger         zerolog.Logger
	cfg            *config.Config
	tracing        bool
	metrics        bool
	metricsBuckets string

	payments   *payment.Handler
	settlement *settlement.Handler
	documents  *document.Handler
	health     health.Handler
	idem       common.Idem
	limiter    ratelimit.Handler
	headers    security.Headers
	bodyLimit  security.BodyLimit
	// files serves memory-backed documents; nil when an object store is used.
	files http.Handler
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if rt.tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rt.metrics {
		httpMetrics := obs.NewHTTPMetrics(rt.cfg.Observability.MetricsNS, obs.ParseBucketsCSV(rt.metricsBuckets), nil)
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rt.logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(rt.cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if rt.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	r.Get("/health/live", rt.health.Live)
	r.Get("/health/ready", rt.health.Ready)

	if rt.files != nil {
		r.Handle("/files/*", http.StripPrefix("/files/", rt.files))
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rt.headers.Middleware)
		v.Use(rt.bodyLimit.Middleware)
		v.Route("/payments", func(p chi.Router) {
			p.Get("/methods", rt.payments.Methods)
			p.With(rt.limiter.Middleware, rt.idem.Middleware).Post("/initiate", rt.payments.Initiate)
			p.With(rt.limiter.Middleware).Post("/verify", rt.settlement.Verify)
			p.Get("/callback/{gateway}/{orderId}", rt.settlement.Callback)
			p.Get("/{orderId}/status", rt.payments.Status)
		})
		v.Post("/documents/generate", rt.documents.Generate)
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{cfg.SiteBaseURL}
	}
	return cfg.CORSAllowedOrigins
}

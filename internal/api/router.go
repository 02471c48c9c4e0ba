package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/amishayyadav/lyftr/internal/api/middleware"
	"github.com/amishayyadav/lyftr/internal/config"
	"github.com/amishayyadav/lyftr/internal/handlers"
	"github.com/amishayyadav/lyftr/internal/store"
)

// maxBodyBytes caps request bodies, webhook payloads included.
const maxBodyBytes = 64 * 1024

// NewRouter creates and configures the HTTP router. redisStore may be nil, in
// which case stats are not cached and rate limiting is off.
func NewRouter(logger zerolog.Logger, db store.DataStore, redisStore *store.RedisStore, cfg *config.Config) *chi.Mux {
	// A typed nil *RedisStore must not leak into the StatsCache interface.
	var cache store.StatsCache
	var limiter *middleware.RateLimiter
	if redisStore != nil {
		cache = redisStore
		limiter = middleware.NewRateLimiter(middleware.NewRedisCounter(redisStore.Client()), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
	}
	return newRouter(logger, db, cache, limiter, cfg)
}

func newRouter(logger zerolog.Logger, db store.DataStore, cache store.StatsCache, limiter *middleware.RateLimiter, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Signature"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limits run per route, after authentication where there is any.
	limit := func(next http.Handler) http.Handler { return next }
	if limiter != nil {
		limit = limiter.Middleware
	}

	h := handlers.NewHandler(db, cache, cfg.WebhookSecret, logger)
	sig := middleware.NewSignatureMiddleware(cfg.WebhookSecret, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	r.With(limit).Get("/messages", h.ListMessages)
	r.With(limit).Get("/stats", h.Stats)

	// Signed routes
	r.Group(func(r chi.Router) {
		r.Use(sig.RequireSignature)
		r.Use(limit)

		r.Post("/webhook", h.Webhook)
	})

	return r
}

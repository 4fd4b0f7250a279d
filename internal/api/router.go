package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/metrics"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/redis"
)

// RouterConfig wires the HTTP surface. RateLimiter may be nil.
type RouterConfig struct {
	Logger         *zap.Logger
	Handler        *Handler
	JWTSecret      string
	InternalKey    string
	CORSOrigins    []string
	RateLimiter    *redis.RateLimiter
	RequestTimeout time.Duration
	Health         []HealthCheck
}

// NewRouter builds the chi router for the gateway.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware)
	r.Use(RequestLogger(cfg.Logger))

	h := cfg.Handler

	r.Route("/api", func(r chi.Router) {
		r.Use(Auth([]byte(cfg.JWTSecret)))
		r.Use(RateLimitMiddleware(cfg.RateLimiter, cfg.Logger, UserKeyFunc))

		r.Post("/device-tokens", h.RegisterDevice)
		r.Delete("/device-tokens", h.UnregisterDevice)

		r.Get("/notifications", h.ListNotifications)
		r.Get("/notifications/unread-count", h.UnreadCount)
		r.Patch("/notifications/read-all", h.MarkAllRead)
		r.Patch("/notifications/{id}/read", h.MarkRead)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalKey(cfg.InternalKey))

		r.Post("/events/"+EventUserRoleChanged, h.UserRoleChanged)
		r.Post("/events/{event}", h.IngestEvent)
	})

	r.Get("/health", healthHandler(cfg.Logger, cfg.Health))

	r.Handle("/metrics", metrics.Handler())

	return r
}

// RequestLogger logs one line per completed request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/ordering-assistant/internal/middleware"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

// RouterConfig wires the HTTP API.
type RouterConfig struct {
	Assistant Assistant
	Health    *HealthHandler
	Logger    *logger.Logger

	ShopID            string
	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CustomerRateLimit int
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	messages := NewMessageHandler(cfg.Assistant, cfg.Logger)
	sessions := NewSessionHandler(cfg.Assistant, cfg.Logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, cfg.ShopID))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeMessages))
			if cfg.CustomerRateLimit > 0 {
				r.Use(middleware.CustomerRateLimit(cfg.CustomerRateLimit, time.Minute))
			}
			r.Post("/messages", messages.Send)
			r.Post("/image-orders", messages.ImageOrder)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeSessions))
			r.Get("/", sessions.List)
			r.Delete("/{customerID}", sessions.End)
		})
	})

	return r
}

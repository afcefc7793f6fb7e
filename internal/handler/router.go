package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fiscaldesk/support-platform/internal/middleware"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

// RouterConfig holds everything NewRouter mounts.
type RouterConfig struct {
	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	Health        *HealthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Stream        *StreamHandler
	Notifications *NotificationHandler
	Events        *EventHandler
}

// NewRouter builds the HTTP routes of the API server.
func NewRouter(cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)

	r.Handle("/metrics", promhttp.Handler())

	staff := middleware.RequireRole(middleware.RoleStudent, middleware.RoleCoordinator, middleware.RoleService)
	publishers := middleware.RequireRole(middleware.RoleCoordinator, middleware.RoleService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", cfg.Conversations.Create)
			r.With(staff).Get("/", cfg.Conversations.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Conversations.Get)
				r.Post("/handoff", cfg.Conversations.RequestHuman)
				r.Post("/close", cfg.Conversations.Close)
				r.Post("/feedback", cfg.Conversations.Feedback)

				r.Get("/messages", cfg.Messages.List)
				r.Post("/messages", cfg.Messages.Append)

				r.Get("/stream", cfg.Stream.Stream)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.Notifications.List)
			r.Post("/read-all", cfg.Notifications.MarkAllRead)
			r.Post("/{id}/read", cfg.Notifications.MarkRead)

			r.With(publishers).Post("/", cfg.Notifications.CreateCustom)
			r.With(publishers).Post("/template", cfg.Notifications.CreateFromTemplate)
		})

		if cfg.Events != nil {
			r.With(publishers).Post("/events", cfg.Events.Ingest)
		}
	})

	return r
}

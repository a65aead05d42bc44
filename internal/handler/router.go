package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mailroute/mailroute/internal/metrics"
	"github.com/mailroute/mailroute/internal/middleware"
)

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Logger   *slog.Logger
	Recorder metrics.Recorder

	Security  middleware.SecurityConfig
	CORS      middleware.CORSConfig
	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig

	Health   *HealthHandler
	Metrics  *MetricsHandler
	Send     *SendHandler
	APIKeys  *APIKeyHandler
	Template *TemplateHandler
	SMTP     *SMTPHandler
	Account  *AccountHandler
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	h := New()
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger, cfg.Recorder))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))

	r.Get("/", h.Index)
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	r.Get("/metrics", cfg.Metrics.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORS))
		r.Use(middleware.MaxBodySize(cfg.Security.MaxRequestBodySize))
		r.Use(middleware.Auth(cfg.Auth))
		r.Use(middleware.RateLimitAPI(cfg.RateLimit))

		r.With(middleware.RequireRead()).Get("/me", cfg.Account.Me)
		r.With(middleware.RequireRead()).Get("/usage", cfg.Account.Usage)
		r.With(middleware.RequireRead()).Get("/stats", cfg.Account.Stats)

		r.Route("/api-keys", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", cfg.APIKeys.ListAPIKeys)
			r.With(middleware.RequireAdmin()).Post("/", cfg.APIKeys.CreateAPIKey)
			r.With(middleware.RequireAdmin()).Delete("/{key_id}", cfg.APIKeys.RevokeAPIKey)
			r.With(middleware.RequireAdmin()).Post("/{key_id}/rotate", cfg.APIKeys.RotateAPIKey)
		})

		r.Route("/templates", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", cfg.Template.List)
			r.With(middleware.RequireRead()).Get("/{template_id}", cfg.Template.Get)
			r.With(middleware.RequireWrite()).Post("/", cfg.Template.Create)
			r.With(middleware.RequireWrite()).Put("/{template_id}", cfg.Template.Update)
			r.With(middleware.RequireWrite()).Delete("/{template_id}", cfg.Template.Delete)
			r.With(middleware.RequireWrite()).Post("/{template_id}/copy", cfg.Template.Copy)
		})

		r.With(middleware.RequireRead()).Get("/smtp", cfg.SMTP.Get)
		r.With(middleware.RequireAdmin()).Put("/smtp", cfg.SMTP.Put)

		r.NotFound(h.NotFound)
		r.MethodNotAllowed(h.MethodNotAllowed)
	})

	// Personal endpoint. The IP limiter runs before any credential work;
	// the handler applies its own body limit and auth failure floor.
	r.With(middleware.RateLimitIP(cfg.RateLimit)).Post("/{username}/{template_id}", cfg.Send.Send)

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

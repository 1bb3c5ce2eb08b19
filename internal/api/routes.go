package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/mailtrack/internal/tracking"
)

// RouterConfig holds what SetupRoutes mounts besides the mail handlers.
type RouterConfig struct {
	AllowedOrigins []string
	Health         *HealthChecker
	Tracking       *tracking.Handler
}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.HandleHealth)
		r.Get("/health/ready", cfg.Health.HandleReadiness)
	} else {
		r.Get("/health", tracking.HandleHealth)
	}

	if cfg.Tracking != nil {
		cfg.Tracking.Register(r)
	}

	r.Post("/mail/selection/recipients", h.HandleSelectRecipients)
	r.Post("/mail/selection/emails", h.HandleSelectEmails)

	r.Get("/mail/send", h.HandleSendForm)
	r.Post("/mail/send", h.HandleSend)
	r.Get("/mail/send-custom", h.HandleCustomSendForm)
	r.Post("/mail/send-custom", h.HandleSendCustom)

	r.Get("/mail/export.csv", h.HandleExportCSV)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	return r
}

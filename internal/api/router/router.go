package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/insurance-leads-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/insurance-leads-platform/internal/http/middleware"
	"github.com/wolfman30/insurance-leads-platform/internal/ratelimit"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	LeadsHandler       *handlers.LeadsHandler
	AdminJournal       *handlers.AdminJournalHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// IPLimiter guards the public form endpoint per client address.
	// Nil disables the guard.
	IPLimiter ratelimit.Limiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.LeadsHandler != nil {
		r.Route("/api/leads", func(api chi.Router) {
			api.With(httpmiddleware.IPGuard(cfg.IPLimiter, cfg.Logger)).Post("/", cfg.LeadsHandler.Submit)
			api.Get("/connectivity", cfg.LeadsHandler.Connectivity)
		})
	}

	// Admin routes are only mounted when a signing secret is configured.
	if cfg.AdminAuthSecret != "" && cfg.AdminJournal != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/journal", cfg.AdminJournal.ListPending)
			admin.Post("/journal/{entryID}/ack", cfg.AdminJournal.Ack)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

package api

import (
	"net/http"
	"strings"

	"technical-analyst/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)

	// The session socket is long-lived and stays outside the request timeout
	r.Get("/ws/session/{id}", h.HandleSessionSocket)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

		// Pages
		r.Get("/", h.HandleIndex)
		r.Get("/index.html", h.HandleIndex)
		r.Get("/analyse", h.HandleAnalyse)
		r.Get("/portefeuille", h.HandlePortfolio)
		r.Get("/dashboard", h.HandleDashboard)
		r.Get("/settings", h.HandleSettingsPage)

		r.Route("/api", func(r chi.Router) {
			r.Get("/search", h.HandleSearch)
			r.Get("/quote/{ticker}", h.HandleQuote)
			r.Get("/chart/{ticker}", h.HandleChart)
			r.Get("/test/{ticker}", h.HandleTestTicker)

			// System
			r.Get("/system/health", h.HandleHealth)
			r.Get("/system/clear_cache", h.HandleClearCache)
			r.Post("/system/clear_cache", h.HandleClearCache)

			// Preferences
			r.Get("/preferences", h.HandleGetPreferences)
			r.Put("/preferences", h.HandleUpdatePreferences)

			// Provider credentials
			r.Route("/settings", func(r chi.Router) {
				r.Get("/", h.HandleGetSettings)
				r.Put("/credentials/{service}", h.HandleUpdateCredentials)
				r.Delete("/credentials/{service}", h.HandleDeleteCredentials)
				r.Post("/credentials/{service}/test", h.HandleTestCredentials)
			})

			// Chart overlays of a page session
			r.Post("/session/{id}/overlay/{op}", h.HandleOverlay)
		})
	})

	return r
}

// CORSMiddleware returns CORS middleware for a comma-separated list of allowed
// origins. "*" allows any origin.
func CORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := map[string]bool{}
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origins["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && origins[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, HX-Request, HX-Target, HX-Current-URL")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

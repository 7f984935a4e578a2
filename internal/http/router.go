package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"gitea.jw6.us/james/gigboard/internal/api"
	"gitea.jw6.us/james/gigboard/internal/auth"
	"gitea.jw6.us/james/gigboard/internal/config"
	httperrors "gitea.jw6.us/james/gigboard/internal/http/errors"
	"gitea.jw6.us/james/gigboard/internal/http/ratelimit"
	"gitea.jw6.us/james/gigboard/internal/metrics"
)

// HealthChecker reports whether the database is reachable. *store.Store satisfies it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter wires all HTTP routes.
func NewRouter(cfg *config.Config, db HealthChecker, h *api.Handler, authService *auth.Service) http.Handler {
	r := chi.NewRouter()

	// Login and registration: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.New("auth", rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)

	// RealIP is left out: the limiter decides itself which forwarding headers to trust.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			httperrors.LogError(r, "readiness check failed", err)
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Post("/", h.CreateEvent)
		r.Get("/filter-by-email", h.FilterEventsByEmail)
		r.Get("/export.ics", h.ExportEvents)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Put("/", h.ReplaceEvent)
			r.Patch("/", h.PatchEvent)
			r.Delete("/", h.DeleteEvent)
			r.Post("/sync", h.ResyncEvent)
			r.Get("/ics", h.ExportEvent)
		})
	})

	r.Route("/musicians", func(r chi.Router) {
		r.Get("/", h.ListMusicians)
		r.Post("/", h.CreateMusician)
		r.Get("/{id}", h.GetMusician)
		r.Put("/{id}", h.ReplaceMusician)
		r.Patch("/{id}", h.PatchMusician)
		r.Delete("/{id}", h.DeleteMusician)
	})

	r.Route("/eventorganizers", func(r chi.Router) {
		r.Get("/", h.ListOrganizers)
		r.Post("/", h.CreateOrganizer)
		r.Get("/{id}", h.GetOrganizer)
		r.Put("/{id}", h.ReplaceOrganizer)
		r.Patch("/{id}", h.PatchOrganizer)
		r.Delete("/{id}", h.DeleteOrganizer)
	})

	r.Group(func(r chi.Router) {
		r.Use(authRateLimiter.Middleware())
		r.Post("/user-credentials", h.RegisterCredentials)
		r.Post("/login", h.Login)
	})
	r.Post("/logout", h.Logout)
	r.With(authService.RequireSession).Get("/me", h.Me)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.Message(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.Message(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

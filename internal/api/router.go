package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/coursework-jobs/internal/api/middleware"
	"github.com/phrazzld/coursework-jobs/internal/api/shared"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds the collaborators of NewRouter. Metrics and Checks
// are optional.
type RouterConfig struct {
	Tasks   TaskService
	Metrics http.Handler
	Checks  map[string]HealthCheck
	Logger  *slog.Logger
}

// NewRouter builds the HTTP handler of the task API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewTraceMiddleware(cfg.Logger))

	tasks := NewTaskHandler(cfg.Tasks, cfg.Logger)
	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", tasks.CreateTask)
		r.Get("/tasks/{id}", tasks.GetTask)
		r.Post("/tasks/{id}/cancel", tasks.CancelTask)
	})

	r.Get("/health", healthHandler(cfg.Checks))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	return r
}

// healthHandler runs every check and answers 503 if any fails.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = "unavailable"
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		shared.RespondWithJSON(w, r, status, map[string]any{
			"status": overall,
			"checks": results,
		})
	}
}

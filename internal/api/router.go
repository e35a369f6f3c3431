package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency probe in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/system", s.handleSystem)
		r.Route("/subsystems", func(r chi.Router) {
			r.Get("/", s.handleListSubsystems)
			r.Get("/{name}", s.handleGetSubsystem)
		})
	})

	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	OpenSessions int               `json:"open_sessions"`
	Subsystems   int               `json:"subsystems"`
	Reconnecting bool              `json:"reconnecting"`
	Checks       map[string]string `json:"checks"`
}

// handleHealth reports "ok" when every stream is open and every probed
// dependency answers; otherwise "degraded" with 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "ok",
		Version:      s.version,
		OpenSessions: s.controller.OpenSessions(),
		Subsystems:   len(s.controller.Subsystems()),
		Reconnecting: s.controller.Reconnecting(),
		Checks:       map[string]string{},
	}

	if resp.OpenSessions < resp.Subsystems {
		resp.Status = "degraded"
		resp.Checks["controller"] = "streams down"
	} else {
		resp.Checks["controller"] = "ok"
	}

	probe := func(name string, hc HealthChecker) {
		if hc == nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := hc.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			return
		}
		resp.Checks[name] = "ok"
	}
	probe("mqtt", s.mqtt)
	probe("database", s.db)

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

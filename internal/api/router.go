package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.collectors != nil {
		r.Use(s.metricsMiddleware)
	}

	// Prometheus exposition
	if s.collectors != nil && s.metricsCfg.Enabled {
		r.Handle(s.metricsCfg.Path, s.collectors.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Get("/telemetry", s.handleGetTelemetry)
				r.Patch("/settings", s.handleUpdateSettings)
				r.Get("/status", s.handleGetStatus)
				r.Put("/status", s.handleSetStatus)
				r.Post("/calibrate", s.handleCalibrate)
				r.Post("/irrigate", s.handleIrrigate)
				r.Get("/events", s.handleListEvents)
			})
		})

		r.Get("/history", s.handleHistory)
		r.Get("/analytics/usage", s.handleUsageAnalytics)

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

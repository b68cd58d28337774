package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/valvectl/internal/auth"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Live operation log (auth via ticket, validated in handler)
		r.Get("/operations/{id}/stream", s.handleOperationStream)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/operations", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermHistoryRead))
				r.Get("/", s.handleListOperations)
				r.Get("/{id}", s.handleGetOperation)
				r.Get("/{id}/logs", s.handleOperationLogs)
			})

			r.Route("/valves", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermValveOperate))
				r.Post("/operate", s.handleOperate)
				r.Post("/stop", s.handleStop)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	active, running := s.manager.Active()

	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"running": running,
	}
	if running {
		body["operation_id"] = active
	}
	writeJSON(w, http.StatusOK, body)
}

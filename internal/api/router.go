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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/types", s.handleListTypes)

			r.Route("/macros", func(r chi.Router) {
				r.Get("/", s.handleListMacros)
				r.Post("/", s.handleCreateMacro)
				r.Post("/import", s.handleImportMacro)
				r.Post("/check", s.handleCheckDocument)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetMacro)
					r.Patch("/", s.handleUpdateMacro)
					r.Delete("/", s.handleDeleteMacro)
					r.Get("/export", s.handleExportMacro)
					r.Get("/check", s.handleCheckMacro)
					r.Post("/run", s.handleRunMacro)
					r.Get("/runs", s.handleListMacroRuns)

					r.Route("/items", func(r chi.Router) {
						r.Get("/", s.handleListItems)
						r.Post("/", s.handleAddItem)
						r.Delete("/", s.handleClearItems)
						r.Patch("/{position}", s.handleUpdateItem)
						r.Delete("/{position}", s.handleRemoveItem)
						r.Post("/{position}/move", s.handleMoveItem)
					})
				})
			})

			r.Route("/runs", func(r chi.Router) {
				r.Get("/", s.handleListActiveRuns)
				r.Get("/{id}", s.handleGetRun)
				r.Post("/{id}/cancel", s.handleCancelRun)
			})

			r.Route("/variables", func(r chi.Router) {
				r.Get("/", s.handleListVariables)
				r.Get("/{name}", s.handleGetVariable)
				r.Put("/{name}", s.handleSetVariable)
				r.Delete("/{name}", s.handleDeleteVariable)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

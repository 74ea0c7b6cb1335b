package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Health (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket upgrades authenticate with a ticket, not a header.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/ws/ticket", s.handleWSTicket)
			r.Post("/refresh", s.handleRefresh)

			r.Route("/locks", func(r chi.Router) {
				r.Get("/", s.handleListLocks)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetLock)
					r.Post("/lock", s.handleLock)
					r.Post("/unlock", s.handleUnlock)
					r.Get("/operations", s.handleListOperations)
				})
			})
		})
	})

	return r
}

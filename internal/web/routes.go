package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/likhithmdev/Final-Sic/internal/web/handlers"
)

func (s *Server) setupRoutes(board handlers.StatusBoard, metricsHandler http.Handler) {
	statusHandler := handlers.NewStatusHandler(board)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/status", statusHandler.Get)
	})

	if metricsHandler != nil {
		s.router.Method(http.MethodGet, "/metrics", metricsHandler)
	}
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(s.recoverPanic)
	r.Use(s.cors)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	// Prometheus exposition
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system/metrics", s.handleMetrics)

		// Registry discovery and the resource store
		r.Route("/nmos", func(r chi.Router) {
			r.Post("/discover", s.handleDiscover)
			r.Get("/resources", s.handleResources)
			r.Get("/topology", s.handleTopology)
			r.Get("/subscriptions", s.handleSubscriptions)
			r.Post("/stop", s.handleStop)
		})

		// Receiver connection management
		r.Route("/connections", func(r chi.Router) {
			r.Get("/", s.handleListConnections)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)

			r.Route("/{receiverID}", func(r chi.Router) {
				r.Get("/state", s.handleQueryState)
				r.Get("/history", s.handleHistory)
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"version":  s.version,
		"registry": s.engine.RegistryURL(),
	}
	if s.registration != nil {
		resp["registered"] = s.registration.Running()
	}
	writeJSON(w, http.StatusOK, resp)
}

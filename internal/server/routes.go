package server

import (
	"expvar"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frostline/rehydrate/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(s.orch, s.status, s.ledger)

	r.Route("/api", func(r chi.Router) {
		// Health
		r.Get("/health", h.Health)

		// Recovery submission
		r.Post("/recoveries", h.SubmitRecovery)
		r.Get("/recoveries/{requestID}", h.GetRequestStatus)

		// Granule and file status
		r.Get("/granules/{granuleID}", h.GetGranuleStatus)
		r.Get("/granules/{granuleID}/file", h.GetFileStatus)
		r.Get("/granules/{granuleID}/events", h.GetAuditTrail)

		// Operator actions
		r.Post("/granules/{granuleID}/redrive", h.RedriveFile)
		r.Get("/stale", h.ListStale)
	})

	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
}

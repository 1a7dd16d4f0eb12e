// Package server implements the rehydrate HTTP API server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/orchestrator"
	"github.com/frostline/rehydrate/internal/status"
)

// Server is the rehydrate HTTP API server.
type Server struct {
	orch   *orchestrator.Orchestrator
	status *status.Service
	ledger ledger.Ledger
	router chi.Router
	addr   string
	srv    *http.Server
}

// New creates a new HTTP server. An empty apiKey disables authentication; a
// maxBody of zero disables the request body limit.
func New(addr string, orch *orchestrator.Orchestrator, st *status.Service, led ledger.Ledger, apiKey string, maxBody int64) *Server {
	s := &Server{
		orch:   orch,
		status: st,
		ledger: led,
		addr:   addr,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	if maxBody > 0 {
		r.Use(MaxBodyMiddleware(maxBody))
	}
	r.Use(APIKeyMiddleware(apiKey))

	s.router = r
	s.registerRoutes(r)
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	fmt.Printf("rehydrate server listening on %s\n", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

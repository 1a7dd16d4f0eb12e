// Package handlers implements HTTP request handlers for the rehydrate API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/orchestrator"
	"github.com/frostline/rehydrate/internal/status"
)

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	orch   *orchestrator.Orchestrator
	status *status.Service
	ledger ledger.Ledger
	logger *slog.Logger
}

// New creates a new Handlers instance.
func New(orch *orchestrator.Orchestrator, st *status.Service, led ledger.Ledger) *Handlers {
	return &Handlers{
		orch:   orch,
		status: st,
		ledger: led,
		logger: slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

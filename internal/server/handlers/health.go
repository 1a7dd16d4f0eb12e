package handlers

import (
	"encoding/json"
	"net/http"
)

// Health reports whether the ledger backing the API is reachable. A
// degraded ledger returns 503 so load balancers can rotate the instance
// out.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := h.ledger.Ping(r.Context()); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		h.logger.Warn("health check failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": status}); err != nil {
		h.logger.Warn("encoding health response", "error", err)
	}
}

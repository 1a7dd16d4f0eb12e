package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/frostline/rehydrate/pkg/types"
)

// ListStale returns staged files whose advisory completion deadline has
// passed.
func (h *Handlers) ListStale(w http.ResponseWriter, r *http.Request) {
	stale, err := h.status.ListStale(r.Context(), time.Now().UTC())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list stale records", err)
		return
	}
	if stale == nil {
		stale = []types.StaleRecord{}
	}
	_ = json.NewEncoder(w).Encode(stale)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// SubmitRecovery accepts a recovery request and begins retrieval for every
// file in it. The 202 response reports per-file acceptance; completion is
// observed through the status endpoints.
func (h *Handlers) SubmitRecovery(w http.ResponseWriter, r *http.Request) {
	var req types.RecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	result, err := h.orch.SubmitRecovery(r.Context(), req)
	if err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, http.StatusBadRequest, verr.Error(), nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to submit recovery", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(result)
}

// GetRequestStatus returns the folded view of one recovery request.
func (h *Handlers) GetRequestStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	view, err := h.status.GetRequestStatus(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "request not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to get request status", err)
		return
	}
	_ = json.NewEncoder(w).Encode(view)
}

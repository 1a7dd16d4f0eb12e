package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// GetGranuleStatus returns the aggregate view of one granule's files.
func (h *Handlers) GetGranuleStatus(w http.ResponseWriter, r *http.Request) {
	granuleID := chi.URLParam(r, "granuleID")
	view, err := h.status.GetGranuleStatus(r.Context(), granuleID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "granule not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to get granule status", err)
		return
	}
	_ = json.NewEncoder(w).Encode(view)
}

// GetFileStatus returns the view of a single file record. File keys carry
// slashes, so the key travels as a query parameter rather than a path segment.
func (h *Handlers) GetFileStatus(w http.ResponseWriter, r *http.Request) {
	granuleID := chi.URLParam(r, "granuleID")
	key := r.URL.Query().Get("key")
	if key == "" {
		h.writeError(w, http.StatusBadRequest, "key query parameter is required", nil)
		return
	}

	view, err := h.status.GetFileStatus(r.Context(), granuleID, key)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "file record not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to get file status", err)
		return
	}
	_ = json.NewEncoder(w).Encode(view)
}

// GetAuditTrail returns the audit events for one file, oldest first.
func (h *Handlers) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	granuleID := chi.URLParam(r, "granuleID")
	key := r.URL.Query().Get("key")
	if key == "" {
		h.writeError(w, http.StatusBadRequest, "key query parameter is required", nil)
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.status.GetAuditTrail(r.Context(), granuleID, key, limit)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "file record not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to list audit events", err)
		return
	}
	if events == nil {
		events = []types.AuditEvent{}
	}
	_ = json.NewEncoder(w).Encode(events)
}

// RedriveFile revives a FAILED file through the operator re-drive gate.
func (h *Handlers) RedriveFile(w http.ResponseWriter, r *http.Request) {
	granuleID := chi.URLParam(r, "granuleID")

	var body struct {
		FileKey string `json:"fileKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if body.FileKey == "" {
		h.writeError(w, http.StatusBadRequest, "fileKey is required", nil)
		return
	}

	result, err := h.orch.Redrive(r.Context(), granuleID, body.FileKey)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "file record not found", nil)
		case errors.Is(err, ledger.ErrInvalidTransition):
			h.writeError(w, http.StatusConflict, "record is not in a re-drivable state", err)
		case errors.Is(err, ledger.ErrConflict):
			h.writeError(w, http.StatusConflict, "concurrent update conflict", err)
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to re-drive file", err)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(result)
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/iconidentify/clipgif/internal/repository"
)

// HistoryHandler serves finished jobs beyond the queue retention window.
type HistoryHandler struct {
	store  repository.HistoryStore
	logger *slog.Logger
}

// NewHistoryHandler creates a history handler. store may be nil.
func NewHistoryHandler(store repository.HistoryStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, logger: logger}
}

// List handles GET /api/v1/history?limit=N (default 50, max 500).
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "job history is disabled")
		return
	}

	limit := intParam(r, "limit", 50, 500)
	if limit == 0 {
		limit = 50
	}
	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read job history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read job history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": entries, "count": len(entries)})
}

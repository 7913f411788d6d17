package handler

import (
	"log/slog"
	"net/http"

	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/httputil"
)

// NarrativeHandler exposes a project's narrative context
type NarrativeHandler struct {
	narrativeService memoirSvc.NarrativeService
	logger           *slog.Logger
}

// NewNarrativeHandler creates a new narrative handler
func NewNarrativeHandler(narrativeService memoirSvc.NarrativeService, logger *slog.Logger) *NarrativeHandler {
	return &NarrativeHandler{
		narrativeService: narrativeService,
		logger:           logger,
	}
}

// GetNarrative returns the stored context
// GET /api/projects/{id}/narrative
func (h *NarrativeHandler) GetNarrative(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	nc, err := h.narrativeService.Get(r.Context(), projectID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, nc)
}

// SyncNarrative folds new pool items into the context
// POST /api/projects/{id}/narrative/sync
func (h *NarrativeHandler) SyncNarrative(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	result, err := h.narrativeService.Sync(r.Context(), projectID)
	if err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("narrative synced",
		"project_id", projectID,
		"processed", result.Processed,
		"pending", len(result.Pending),
	)
	httputil.RespondJSON(w, http.StatusOK, result)
}

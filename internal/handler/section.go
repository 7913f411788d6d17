package handler

import (
	"log/slog"
	"net/http"

	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/httputil"
)

// SectionHandler handles section locking, editing and history
type SectionHandler struct {
	sectionService memoirSvc.SectionService
	logger         *slog.Logger
}

// NewSectionHandler creates a new section handler
func NewSectionHandler(sectionService memoirSvc.SectionService, logger *slog.Logger) *SectionHandler {
	return &SectionHandler{
		sectionService: sectionService,
		logger:         logger,
	}
}

func sectionParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	projectionID, ok := pathParam(w, r, "id", "Projection ID")
	if !ok {
		return "", "", false
	}
	sectionID, ok := pathParam(w, r, "sid", "Section ID")
	if !ok {
		return "", "", false
	}
	return projectionID, sectionID, true
}

// LockSection protects a section from automated updates
// POST /api/projections/{id}/sections/{sid}/lock
func (h *SectionHandler) LockSection(w http.ResponseWriter, r *http.Request) {
	projectionID, sectionID, ok := sectionParams(w, r)
	if !ok {
		return
	}

	// Body is optional
	var req memoirSvc.LockSectionRequest
	if r.ContentLength > 0 {
		if err := httputil.ParseJSON(w, r, &req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	req.ProjectionID = projectionID
	req.SectionID = sectionID
	req.UserID = httputil.GetUserID(r)

	section, err := h.sectionService.Lock(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, section)
}

// UnlockSection allows automated updates again
// POST /api/projections/{id}/sections/{sid}/unlock
func (h *SectionHandler) UnlockSection(w http.ResponseWriter, r *http.Request) {
	projectionID, sectionID, ok := sectionParams(w, r)
	if !ok {
		return
	}

	section, err := h.sectionService.Unlock(r.Context(), projectionID, sectionID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, section)
}

// EditSection stores a manual edit as a new version
// POST /api/projections/{id}/sections/{sid}/edit
func (h *SectionHandler) EditSection(w http.ResponseWriter, r *http.Request) {
	projectionID, sectionID, ok := sectionParams(w, r)
	if !ok {
		return
	}

	var req memoirSvc.EditSectionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ProjectionID = projectionID
	req.SectionID = sectionID
	req.UserID = httputil.GetUserID(r)

	version, err := h.sectionService.Edit(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, version)
}

// RevertSection restores an earlier version as a new version
// POST /api/projections/{id}/sections/{sid}/revert
func (h *SectionHandler) RevertSection(w http.ResponseWriter, r *http.Request) {
	projectionID, sectionID, ok := sectionParams(w, r)
	if !ok {
		return
	}

	var req memoirSvc.RevertSectionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ProjectionID = projectionID
	req.SectionID = sectionID
	req.UserID = httputil.GetUserID(r)

	version, err := h.sectionService.Revert(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, version)
}

// GetHistory lists a section's versions
// GET /api/projections/{id}/sections/{sid}/history
func (h *SectionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	projectionID, sectionID, ok := sectionParams(w, r)
	if !ok {
		return
	}

	versions, err := h.sectionService.History(r.Context(), projectionID, sectionID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, versions)
}

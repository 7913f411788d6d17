package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/httputil"
)

// ProjectionHandler handles projection HTTP requests
type ProjectionHandler struct {
	projectionService memoirSvc.ProjectionService
	logger            *slog.Logger
}

// NewProjectionHandler creates a new projection handler
func NewProjectionHandler(projectionService memoirSvc.ProjectionService, logger *slog.Logger) *ProjectionHandler {
	return &ProjectionHandler{
		projectionService: projectionService,
		logger:            logger,
	}
}

// CreateProjection creates a projection of a project's pool
// POST /api/projects/{id}/projections
func (h *ProjectionHandler) CreateProjection(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	var req memoirSvc.CreateProjectionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ProjectID = projectID

	projection, err := h.projectionService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, projection)
}

// ListProjections lists a project's projections
// GET /api/projects/{id}/projections
func (h *ProjectionHandler) ListProjections(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	projections, err := h.projectionService.List(r.Context(), projectID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, projections)
}

// GetProjection returns a projection with its sections
// GET /api/projections/{id}
func (h *ProjectionHandler) GetProjection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id", "Projection ID")
	if !ok {
		return
	}

	projection, err := h.projectionService.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, projection)
}

// GetUpdateOptions describes what each update mode would touch
// GET /api/projections/{id}/options
func (h *ProjectionHandler) GetUpdateOptions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id", "Projection ID")
	if !ok {
		return
	}

	options, err := h.projectionService.UpdateOptions(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, options)
}

// ExportProjection renders a projection as a downloadable document
// GET /api/projections/{id}/export?format=markdown|html
func (h *ProjectionHandler) ExportProjection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id", "Projection ID")
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = memoirSvc.ExportMarkdown
	}

	export, err := h.projectionService.Export(r.Context(), id, format)
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(export.Body)); err != nil {
		h.logger.Warn("export write failed", "projection_id", id, "error", err)
	}
}

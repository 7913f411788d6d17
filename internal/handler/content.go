package handler

import (
	"log/slog"
	"net/http"

	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/httputil"
)

// ContentHandler handles content pool HTTP requests
type ContentHandler struct {
	contentService memoirSvc.ContentService
	logger         *slog.Logger
}

// NewContentHandler creates a new content handler
func NewContentHandler(contentService memoirSvc.ContentService, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		contentService: contentService,
		logger:         logger,
	}
}

// AppendContent adds an item to a project's pool
// POST /api/projects/{id}/content
func (h *ContentHandler) AppendContent(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	var req memoirSvc.AppendContentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ProjectID = projectID
	if req.ContributorID == "" {
		req.ContributorID = httputil.GetUserID(r)
	}

	item, err := h.contentService.Append(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, item)
}

// SupersedeContent records a corrected version of an item
// POST /api/content/{id}/supersede
func (h *ContentHandler) SupersedeContent(w http.ResponseWriter, r *http.Request) {
	contentID, ok := pathParam(w, r, "id", "Content ID")
	if !ok {
		return
	}

	var req memoirSvc.SupersedeContentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ContributorID == "" {
		req.ContributorID = httputil.GetUserID(r)
	}

	item, err := h.contentService.Supersede(r.Context(), contentID, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, item)
}

// GetContent returns one item
// GET /api/content/{id}
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	contentID, ok := pathParam(w, r, "id", "Content ID")
	if !ok {
		return
	}

	item, err := h.contentService.Get(r.Context(), contentID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, item)
}

// ListContent returns one page of a project's pool
// GET /api/projects/{id}/content?after=&limit=
func (h *ContentHandler) ListContent(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	after, err := queryInt(r, "after", 0)
	if err != nil {
		handleError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		handleError(w, err)
		return
	}

	page, err := h.contentService.ListSince(r.Context(), projectID, after, int(limit))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, page)
}

package handler

import (
	"net/http"

	"memoir/internal/httputil"
)

// Handlers groups every HTTP handler the API exposes
type Handlers struct {
	Content    *ContentHandler
	Narrative  *NarrativeHandler
	Projection *ProjectionHandler
	Update     *UpdateHandler
	Section    *SectionHandler
}

// Middleware wraps a handler
type Middleware func(http.Handler) http.Handler

// NewRouter registers every route on a new mux. apiMiddleware wraps the /api
// routes only (the health check stays public); it is applied in order, so the
// first entry is outermost.
func NewRouter(h *Handlers, apiMiddleware ...Middleware) http.Handler {
	api := http.NewServeMux()

	// Content pool
	api.HandleFunc("POST /api/projects/{id}/content", h.Content.AppendContent)
	api.HandleFunc("GET /api/projects/{id}/content", h.Content.ListContent)
	api.HandleFunc("GET /api/content/{id}", h.Content.GetContent)
	api.HandleFunc("POST /api/content/{id}/supersede", h.Content.SupersedeContent)

	// Narrative context
	api.HandleFunc("GET /api/projects/{id}/narrative", h.Narrative.GetNarrative)
	api.HandleFunc("POST /api/projects/{id}/narrative/sync", h.Narrative.SyncNarrative)

	// Projections
	api.HandleFunc("POST /api/projects/{id}/projections", h.Projection.CreateProjection)
	api.HandleFunc("GET /api/projects/{id}/projections", h.Projection.ListProjections)
	api.HandleFunc("GET /api/projections/{id}", h.Projection.GetProjection)
	api.HandleFunc("GET /api/projections/{id}/options", h.Projection.GetUpdateOptions)
	api.HandleFunc("GET /api/projections/{id}/export", h.Projection.ExportProjection)

	// Updates
	api.HandleFunc("POST /api/projections/{id}/update", h.Update.UpdateProjection)
	api.HandleFunc("GET /api/projections/{id}/runs/{run_id}", h.Update.GetRun)
	api.HandleFunc("POST /api/projections/{id}/runs/{run_id}/cancel", h.Update.CancelRun)
	api.HandleFunc("GET /api/projections/{id}/runs/{run_id}/events", h.Update.StreamRun)

	// Sections
	api.HandleFunc("POST /api/projections/{id}/sections/{sid}/lock", h.Section.LockSection)
	api.HandleFunc("POST /api/projections/{id}/sections/{sid}/unlock", h.Section.UnlockSection)
	api.HandleFunc("POST /api/projections/{id}/sections/{sid}/edit", h.Section.EditSection)
	api.HandleFunc("POST /api/projections/{id}/sections/{sid}/revert", h.Section.RevertSection)
	api.HandleFunc("GET /api/projections/{id}/sections/{sid}/history", h.Section.GetHistory)

	var apiHandler http.Handler = api
	for i := len(apiMiddleware) - 1; i >= 0; i-- {
		apiHandler = apiMiddleware[i](apiHandler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/api/", apiHandler)
	return mux
}

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
	"memoir/internal/handler/sse"
	"memoir/internal/httputil"
)

// UpdateHandler runs projection updates, synchronously or as background runs
type UpdateHandler struct {
	engine    memoirSvc.ProjectionEngine
	runner    memoirSvc.UpdateRunner
	sseConfig *sse.Config
	logger    *slog.Logger
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(
	engine memoirSvc.ProjectionEngine,
	runner memoirSvc.UpdateRunner,
	sseConfig *sse.Config,
	logger *slog.Logger,
) *UpdateHandler {
	if sseConfig == nil {
		sseConfig = sse.DefaultConfig()
	}
	return &UpdateHandler{
		engine:    engine,
		runner:    runner,
		sseConfig: sseConfig,
		logger:    logger,
	}
}

// UpdateProjection runs an update. With async the run starts in the
// background and 202 is returned with the run.
// POST /api/projections/{id}/update
func (h *UpdateHandler) UpdateProjection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathParam(w, r, "id", "Projection ID")
	if !ok {
		return
	}

	var req memoirSvc.UpdateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ProjectionID = id
	req.UserID = httputil.GetUserID(r)

	if req.Async {
		run, err := h.runner.Start(r.Context(), &req)
		if err != nil {
			handleError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusAccepted, run)
		return
	}

	result, err := h.engine.Update(r.Context(), &req)
	if err != nil {
		var generationErr *domain.GenerationError
		if result != nil && errors.As(err, &generationErr) {
			httputil.RespondErrorWithExtras(w, http.StatusServiceUnavailable, err.Error(), map[string]interface{}{
				"transient": generationErr.Transient,
				"result":    result,
			})
			return
		}
		handleError(w, err)
		return
	}

	// Failed sections are reported per section, not as an error
	httputil.RespondJSON(w, http.StatusOK, result)
}

// GetRun returns the status of a background run
// GET /api/projections/{id}/runs/{run_id}
func (h *UpdateHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	httputil.RespondJSON(w, http.StatusOK, run)
}

// CancelRun stops a background run before its next section
// POST /api/projections/{id}/runs/{run_id}/cancel
func (h *UpdateHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	if err := h.runner.Cancel(run.ID); err != nil {
		handleError(w, err)
		return
	}

	run, err := h.runner.Get(run.ID)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusAccepted, run)
}

// StreamRun streams section outcomes of a run as Server-Sent Events, ending
// with a "done" event carrying the final run. Last-Event-ID resumes after
// the given outcome.
// GET /api/projections/{id}/runs/{run_id}/events
func (h *UpdateHandler) StreamRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	next := 0
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if n, err := strconv.Atoi(last); err == nil && n >= 0 {
			next = n + 1
		}
	}

	clientID := uuid.NewString()
	writer, err := sse.NewWriter(w, run.ID, clientID)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Debug("run stream established", "run_id", run.ID, "client_id", clientID)

	keepAlive := sse.NewTickerKeepAlive(h.sseConfig.KeepAliveInterval)
	keepAliveStopped := keepAlive.Start(writer, h.logger)
	defer keepAlive.Stop()

	for {
		progress, err := h.runner.Progress(run.ID, next)
		if err != nil {
			h.logger.Warn("run progress unavailable", "run_id", run.ID, "error", err)
			return
		}

		for i, outcome := range progress.Outcomes {
			if err := h.writeJSONEvent(writer, next+i, "section", outcome); err != nil {
				h.logger.Info("client disconnected during event write", "run_id", run.ID, "client_id", clientID, "error", err)
				return
			}
		}
		next = progress.Next

		if progress.Run.Status != models.RunRunning {
			if err := h.writeJSONEvent(writer, next, "done", progress.Run); err != nil {
				h.logger.Info("client disconnected before done event", "run_id", run.ID, "error", err)
			}
			return
		}

		select {
		case <-progress.Changed:
		case <-keepAliveStopped:
			return
		case <-r.Context().Done():
			h.logger.Debug("run stream closed by client", "run_id", run.ID, "client_id", clientID)
			return
		}
	}
}

func (h *UpdateHandler) writeJSONEvent(writer *sse.Writer, id int, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	return writer.WriteEvent(id, event, payload)
}

// lookupRun resolves the run in the path and checks it belongs to the projection
func (h *UpdateHandler) lookupRun(w http.ResponseWriter, r *http.Request) (*models.UpdateRun, bool) {
	projectionID, ok := pathParam(w, r, "id", "Projection ID")
	if !ok {
		return nil, false
	}
	runID, ok := pathParam(w, r, "run_id", "Run ID")
	if !ok {
		return nil, false
	}

	run, err := h.runner.Get(runID)
	if err != nil {
		handleError(w, err)
		return nil, false
	}
	if run.ProjectionID != projectionID {
		handleError(w, &domain.NotFoundError{Message: fmt.Sprintf("update run not found: %s", runID)})
		return nil, false
	}
	return run, true
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"memoir/internal/domain"
	"memoir/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var (
		conflictErr   *domain.ConflictError
		generationErr *domain.GenerationError
	)

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrState):
		httputil.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &conflictErr):
		httputil.RespondErrorWithExtras(w, http.StatusConflict, conflictErr.Error(), map[string]interface{}{
			"reason":        conflictErr.Reason,
			"resource_type": conflictErr.ResourceType,
			"resource_id":   conflictErr.ResourceID,
		})
	case errors.As(err, &generationErr):
		httputil.RespondErrorWithExtras(w, http.StatusServiceUnavailable, generationErr.Error(), map[string]interface{}{
			"transient": generationErr.Transient,
		})
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// pathParam returns a required path value, writing a 400 when it is missing
func pathParam(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	value := r.PathValue(name)
	if value == "" {
		httputil.RespondError(w, http.StatusBadRequest, label+" is required")
		return "", false
	}
	return value, true
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &domain.ValidationError{Message: name + " must be an integer"}
	}
	return v, nil
}

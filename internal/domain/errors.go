package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Domain error types implementing HTTPError interface
type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}

	// ForbiddenError indicates authorization failure
	ForbiddenError struct {
		Message string
	}

	// StateError indicates an operation that is not legal in the resource's
	// current state (for example reverting to a version of another section).
	StateError struct {
		Message string
	}
)

// Error implementations
func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *ForbiddenError) Error() string    { return e.Message }
func (e *StateError) Error() string        { return e.Message }

// StatusCode implementations (HTTPError interface)
func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *ForbiddenError) StatusCode() int    { return http.StatusForbidden }
func (e *StateError) StatusCode() int        { return http.StatusUnprocessableEntity }

// Is implementations so typed errors match their sentinels
func (e *NotFoundError) Is(target error) bool     { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool   { return target == ErrValidation }
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }
func (e *ForbiddenError) Is(target error) bool    { return target == ErrForbidden }
func (e *StateError) Is(target error) bool        { return target == ErrState }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrState        = errors.New("invalid state")
	ErrGeneration   = errors.New("generation failed")
)

// Conflict reasons
const (
	ReasonAlreadyExists   = "already_exists"
	ReasonAlreadyUpdating = "already_updating"
	ReasonNotLatest       = "not_latest_version"
)

// ConflictError represents a resource conflict with details about the existing resource
type ConflictError struct {
	Message      string // Human-readable error message
	Reason       string // Machine-readable reason (already_updating, already_exists, ...)
	ResourceType string // Type of resource (projection, content_item, ...)
	ResourceID   string // ID of the existing/conflicting resource
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewAlreadyUpdatingError reports that another update holds the projection.
func NewAlreadyUpdatingError(projectionID string) *ConflictError {
	return &ConflictError{
		Message:      fmt.Sprintf("projection %s is already being updated", projectionID),
		Reason:       ReasonAlreadyUpdating,
		ResourceType: "projection",
		ResourceID:   projectionID,
	}
}

// GenerationError is a failure of the text-generation capability.
// Transient errors (timeouts, rate limits, upstream 5xx) may be retried.
type GenerationError struct {
	SectionID string
	Message   string
	Transient bool
	Err       error
}

// Error implements the error interface
func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// StatusCode implements the HTTPError interface
func (e *GenerationError) StatusCode() int {
	return http.StatusServiceUnavailable
}

// Is allows errors.Is() to match against ErrGeneration
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable generation failure.
func IsTransient(err error) bool {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Transient
	}
	return false
}

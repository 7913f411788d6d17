package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"memoir/internal/domain"
)

// transientMarkers are substrings of upstream error messages that indicate a
// retryable condition. Provider libraries do not share typed errors.
var transientMarkers = []string{
	"429",
	"rate limit",
	"rate_limit",
	"overloaded",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"connection reset",
	"500",
	"502",
	"503",
	"504",
	"unavailable",
}

// classifyError wraps a backend error as *domain.GenerationError
func classifyError(backend string, err error) error {
	if err == nil {
		return nil
	}

	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return err
	}

	return &domain.GenerationError{
		Message:   backend + " generation failed",
		Transient: isTransient(err),
		Err:       err,
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

package memoir

import (
	"context"

	models "memoir/internal/domain/models/memoir"
)

// NarrativeService maintains the per-project narrative context
type NarrativeService interface {
	// Get returns the stored context (an empty one before the first sync)
	Get(ctx context.Context, projectID string) (*models.NarrativeContext, error)

	// Sync folds every unprocessed pool item into the context.
	// Per-item generation failures are retried on the next sync, not returned.
	Sync(ctx context.Context, projectID string) (*SyncResult, error)

	// IsStale reports whether the pool has items past the high-water mark
	IsStale(ctx context.Context, projectID string) (bool, error)
}

// SyncResult reports one sync pass
type SyncResult struct {
	Context   *models.NarrativeContext `json:"context"`
	Processed int                      `json:"processed"`
	Pending   []string                 `json:"pending"`
	Skipped   []string                 `json:"skipped,omitempty"`
}

package memoir

import (
	"context"

	models "memoir/internal/domain/models/memoir"
)

// NarrativeRepository stores one NarrativeContext per project.
type NarrativeRepository interface {
	// Get returns the project's context or domain.ErrNotFound
	Get(ctx context.Context, projectID string) (*models.NarrativeContext, error)

	// Save upserts the context
	Save(ctx context.Context, nc *models.NarrativeContext) error
}

package memoir

import (
	"context"

	models "memoir/internal/domain/models/memoir"
)

// ContentRepository persists the append-only content pool.
type ContentRepository interface {
	// Append inserts an item and assigns its pool sequence
	Append(ctx context.Context, item *models.ContentItem) error

	// GetByID retrieves an item by ID
	GetByID(ctx context.Context, id string) (*models.ContentItem, error)

	// GetMany retrieves the items with the given IDs (missing IDs are omitted)
	GetMany(ctx context.Context, ids []string) ([]models.ContentItem, error)

	// ListSince returns up to limit items with sequence > afterSequence, in sequence order
	ListSince(ctx context.Context, projectID string, afterSequence int64, limit int) ([]models.ContentItem, error)

	// ListByProject returns every item of a project in sequence order
	ListByProject(ctx context.Context, projectID string) ([]models.ContentItem, error)

	// HeadSequence returns the highest sequence in the project's pool (0 when empty)
	HeadSequence(ctx context.Context, projectID string) (int64, error)

	// HasSuccessor reports whether any item names id as its previous version
	HasSuccessor(ctx context.Context, id string) (bool, error)
}

package memory

import (
	"context"
	"fmt"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirRepo "memoir/internal/domain/repositories/memoir"
)

type narrativeRepository struct {
	store *Store
}

// NewNarrativeRepository creates a narrative repository backed by store
func NewNarrativeRepository(store *Store) memoirRepo.NarrativeRepository {
	return &narrativeRepository{store: store}
}

func (r *narrativeRepository) Get(ctx context.Context, projectID string) (*models.NarrativeContext, error) {
	defer r.store.enter(ctx)()

	nc, ok := r.store.data.narratives[projectID]
	if !ok {
		return nil, fmt.Errorf("narrative context for project %s: %w", projectID, domain.ErrNotFound)
	}
	nc = copyNarrative(nc)
	return &nc, nil
}

func (r *narrativeRepository) Save(ctx context.Context, nc *models.NarrativeContext) error {
	defer r.store.enter(ctx)()

	r.store.data.narratives[nc.ProjectID] = copyNarrative(*nc)
	return nil
}

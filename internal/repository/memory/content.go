package memory

import (
	"context"
	"fmt"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirRepo "memoir/internal/domain/repositories/memoir"
)

type contentRepository struct {
	store *Store
}

// NewContentRepository creates a content repository backed by store
func NewContentRepository(store *Store) memoirRepo.ContentRepository {
	return &contentRepository{store: store}
}

func (r *contentRepository) Append(ctx context.Context, item *models.ContentItem) error {
	defer r.store.enter(ctx)()
	data := r.store.data

	if _, exists := data.content[item.ID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("content item %s already exists", item.ID),
			Reason:       domain.ReasonAlreadyExists,
			ResourceType: "content_item",
			ResourceID:   item.ID,
		}
	}

	data.nextSequence++
	item.Sequence = data.nextSequence
	data.content[item.ID] = copyItem(*item)
	data.poolOrder[item.ProjectID] = append(data.poolOrder[item.ProjectID], item.ID)
	return nil
}

func (r *contentRepository) GetByID(ctx context.Context, id string) (*models.ContentItem, error) {
	defer r.store.enter(ctx)()

	item, ok := r.store.data.content[id]
	if !ok {
		return nil, fmt.Errorf("content item %s: %w", id, domain.ErrNotFound)
	}
	item = copyItem(item)
	return &item, nil
}

func (r *contentRepository) GetMany(ctx context.Context, ids []string) ([]models.ContentItem, error) {
	defer r.store.enter(ctx)()

	items := make([]models.ContentItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := r.store.data.content[id]; ok {
			items = append(items, copyItem(item))
		}
	}
	return items, nil
}

func (r *contentRepository) ListSince(ctx context.Context, projectID string, afterSequence int64, limit int) ([]models.ContentItem, error) {
	defer r.store.enter(ctx)()

	var items []models.ContentItem
	for _, id := range r.store.data.poolOrder[projectID] {
		item := r.store.data.content[id]
		if item.Sequence <= afterSequence {
			continue
		}
		items = append(items, copyItem(item))
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}

func (r *contentRepository) ListByProject(ctx context.Context, projectID string) ([]models.ContentItem, error) {
	return r.ListSince(ctx, projectID, 0, 0)
}

func (r *contentRepository) HeadSequence(ctx context.Context, projectID string) (int64, error) {
	defer r.store.enter(ctx)()

	ids := r.store.data.poolOrder[projectID]
	if len(ids) == 0 {
		return 0, nil
	}
	return r.store.data.content[ids[len(ids)-1]].Sequence, nil
}

func (r *contentRepository) HasSuccessor(ctx context.Context, id string) (bool, error) {
	defer r.store.enter(ctx)()

	for _, item := range r.store.data.content {
		if item.PreviousVersionID != nil && *item.PreviousVersionID == id {
			return true, nil
		}
	}
	return false, nil
}

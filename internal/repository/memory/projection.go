package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirRepo "memoir/internal/domain/repositories/memoir"
)

type projectionRepository struct {
	store *Store
}

// NewProjectionRepository creates a projection repository backed by store
func NewProjectionRepository(store *Store) memoirRepo.ProjectionRepository {
	return &projectionRepository{store: store}
}

func (r *projectionRepository) Create(ctx context.Context, projection *models.Projection) error {
	defer r.store.enter(ctx)()
	data := r.store.data

	if _, exists := data.projections[projection.ID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("projection %s already exists", projection.ID),
			Reason:       domain.ReasonAlreadyExists,
			ResourceType: "projection",
			ResourceID:   projection.ID,
		}
	}

	row := copyProjection(*projection)
	data.projections[projection.ID] = row

	ids := make([]string, 0, len(projection.Sections))
	for _, s := range projection.Sections {
		data.sections[s.ID] = copySection(s)
		ids = append(ids, s.ID)
	}
	data.sectionOrder[projection.ID] = ids
	return nil
}

func (r *projectionRepository) GetByID(ctx context.Context, id string) (*models.Projection, error) {
	defer r.store.enter(ctx)()
	return r.load(id)
}

func (r *projectionRepository) load(id string) (*models.Projection, error) {
	row, ok := r.store.data.projections[id]
	if !ok {
		return nil, fmt.Errorf("projection %s: %w", id, domain.ErrNotFound)
	}

	projection := copyProjection(row)
	projection.Sections = make([]models.Section, 0, len(r.store.data.sectionOrder[id]))
	for _, sid := range r.store.data.sectionOrder[id] {
		projection.Sections = append(projection.Sections, copySection(r.store.data.sections[sid]))
	}
	sort.SliceStable(projection.Sections, func(i, j int) bool {
		return projection.Sections[i].Order < projection.Sections[j].Order
	})
	return &projection, nil
}

func (r *projectionRepository) ListByProject(ctx context.Context, projectID string) ([]models.Projection, error) {
	defer r.store.enter(ctx)()

	var projections []models.Projection
	for id, row := range r.store.data.projections {
		if row.ProjectID != projectID {
			continue
		}
		p, err := r.load(id)
		if err != nil {
			return nil, err
		}
		projections = append(projections, *p)
	}
	sort.Slice(projections, func(i, j int) bool {
		return projections[i].CreatedAt.Before(projections[j].CreatedAt)
	})
	return projections, nil
}

func (r *projectionRepository) GetSection(ctx context.Context, projectionID, sectionID string) (*models.Section, error) {
	defer r.store.enter(ctx)()

	section, ok := r.store.data.sections[sectionID]
	if !ok || section.ProjectionID != projectionID {
		return nil, fmt.Errorf("section %s: %w", sectionID, domain.ErrNotFound)
	}
	section = copySection(section)
	return &section, nil
}

func (r *projectionRepository) UpdateSectionLock(ctx context.Context, section *models.Section) error {
	defer r.store.enter(ctx)()

	stored, ok := r.store.data.sections[section.ID]
	if !ok {
		return fmt.Errorf("section %s: %w", section.ID, domain.ErrNotFound)
	}
	stored.LockState = section.LockState
	stored.LockedAt = section.LockedAt
	stored.LockedBy = section.LockedBy
	stored.LockReason = section.LockReason
	r.store.data.sections[section.ID] = stored
	return nil
}

func (r *projectionRepository) AppendVersion(ctx context.Context, version *models.SectionVersion) error {
	defer r.store.enter(ctx)()

	if _, ok := r.store.data.sections[version.SectionID]; !ok {
		return fmt.Errorf("section %s: %w", version.SectionID, domain.ErrNotFound)
	}
	history := r.store.data.versions[version.SectionID]
	version.SequenceNumber = len(history) + 1
	r.store.data.versions[version.SectionID] = append(history, copyVersion(*version))
	return nil
}

func (r *projectionRepository) SetCurrentVersion(ctx context.Context, section *models.Section) error {
	defer r.store.enter(ctx)()

	stored, ok := r.store.data.sections[section.ID]
	if !ok {
		return fmt.Errorf("section %s: %w", section.ID, domain.ErrNotFound)
	}
	stored.CurrentVersionID = section.CurrentVersionID
	stored.SourceContentIDs = slices.Clone(section.SourceContentIDs)
	stored.Text = section.Text
	stored.WordCount = section.WordCount
	stored.LastUpdatedAt = section.LastUpdatedAt
	r.store.data.sections[section.ID] = stored
	return nil
}

func (r *projectionRepository) SetCurrentVersionIfUnlocked(ctx context.Context, section *models.Section) (bool, error) {
	defer r.store.enter(ctx)()

	stored, ok := r.store.data.sections[section.ID]
	if !ok {
		return false, fmt.Errorf("section %s: %w", section.ID, domain.ErrNotFound)
	}
	if stored.IsLocked() {
		return false, nil
	}
	stored.CurrentVersionID = section.CurrentVersionID
	stored.SourceContentIDs = slices.Clone(section.SourceContentIDs)
	stored.Text = section.Text
	stored.WordCount = section.WordCount
	stored.LastUpdatedAt = section.LastUpdatedAt
	r.store.data.sections[section.ID] = stored
	return true, nil
}

func (r *projectionRepository) ListVersions(ctx context.Context, sectionID string) ([]models.SectionVersion, error) {
	defer r.store.enter(ctx)()

	history := r.store.data.versions[sectionID]
	versions := make([]models.SectionVersion, 0, len(history))
	for _, v := range history {
		versions = append(versions, copyVersion(v))
	}
	return versions, nil
}

func (r *projectionRepository) GetVersionBySequence(ctx context.Context, sectionID string, sequence int) (*models.SectionVersion, error) {
	defer r.store.enter(ctx)()

	history := r.store.data.versions[sectionID]
	if sequence < 1 || sequence > len(history) {
		return nil, &domain.NotFoundError{
			Message: fmt.Sprintf("section %s has no version %d", sectionID, sequence),
		}
	}
	v := copyVersion(history[sequence-1])
	return &v, nil
}

func (r *projectionRepository) Touch(ctx context.Context, projectionID string, change memoirRepo.ProjectionChange) (int, error) {
	defer r.store.enter(ctx)()

	row, ok := r.store.data.projections[projectionID]
	if !ok {
		return 0, fmt.Errorf("projection %s: %w", projectionID, domain.ErrNotFound)
	}
	if change.Bump {
		row.Version++
	}
	if change.Mode != "" {
		mode := change.Mode
		row.LastUpdateMode = &mode
	}
	row.WordCount = change.WordCount
	row.UpdatedAt = change.UpdatedAt
	r.store.data.projections[projectionID] = row
	return row.Version, nil
}

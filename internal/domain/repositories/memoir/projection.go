package memoir

import (
	"context"
	"time"

	models "memoir/internal/domain/models/memoir"
)

// ProjectionRepository persists projections, their sections and section history.
//
// Compound writes (append a version, then point the section at it) are made
// atomic by running them inside repositories.TransactionManager.ExecTx.
type ProjectionRepository interface {
	// Create inserts a projection together with its sections
	Create(ctx context.Context, projection *models.Projection) error

	// GetByID retrieves a projection with its sections ordered by Order
	GetByID(ctx context.Context, id string) (*models.Projection, error)

	// ListByProject lists projections of a project (sections included)
	ListByProject(ctx context.Context, projectID string) ([]models.Projection, error)

	// GetSection retrieves one section of a projection
	GetSection(ctx context.Context, projectionID, sectionID string) (*models.Section, error)

	// UpdateSectionLock persists LockState, LockedAt, LockedBy and LockReason
	UpdateSectionLock(ctx context.Context, section *models.Section) error

	// AppendVersion inserts a version, assigning SequenceNumber = previous max + 1
	AppendVersion(ctx context.Context, version *models.SectionVersion) error

	// SetCurrentVersion persists CurrentVersionID, SourceContentIDs, Text,
	// WordCount and LastUpdatedAt of a section
	SetCurrentVersion(ctx context.Context, section *models.Section) error

	// SetCurrentVersionIfUnlocked is SetCurrentVersion for generated text: the
	// write only applies while the stored section is unlocked. Returns false
	// when the section was locked, leaving it untouched.
	SetCurrentVersionIfUnlocked(ctx context.Context, section *models.Section) (bool, error)

	// ListVersions returns a section's history in sequence order
	ListVersions(ctx context.Context, sectionID string) ([]models.SectionVersion, error)

	// GetVersionBySequence returns the version with the given sequence number
	GetVersionBySequence(ctx context.Context, sectionID string, sequence int) (*models.SectionVersion, error)

	// Touch records a change to the projection. When bump is true the version is
	// incremented by one. Returns the projection version after the write.
	Touch(ctx context.Context, projectionID string, change ProjectionChange) (int, error)
}

// ProjectionChange describes the projection-level fields written by Touch.
type ProjectionChange struct {
	Bump      bool
	Mode      string
	WordCount int
	UpdatedAt time.Time
}

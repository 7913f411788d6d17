package memoir

import (
	"context"

	models "memoir/internal/domain/models/memoir"
)

// ProjectionEngine computes and incrementally updates projection sections.
// At most one update runs per projection at a time.
type ProjectionEngine interface {
	// Update acquires the projection, runs the mode and releases it.
	// Returns *domain.ConflictError (already_updating) when another update holds it.
	Update(ctx context.Context, req *UpdateRequest) (*models.UpdateResult, error)

	// Acquire takes the projection's update lock for a caller that will run
	// UpdateLocked later (possibly on another goroutine).
	Acquire(ctx context.Context, projectionID string) (release func(), err error)

	// UpdateLocked runs an update; the caller must hold the projection lock.
	UpdateLocked(ctx context.Context, req *UpdateRequest) (*models.UpdateResult, error)
}

// UpdateRequest is the DTO for running an update
type UpdateRequest struct {
	ProjectionID string            `json:"-"`
	Mode         models.UpdateMode `json:"mode"`
	SectionIDs   []string          `json:"section_ids,omitempty"`
	ContentIDs   []string          `json:"content_ids,omitempty"` // append only
	Async        bool              `json:"async,omitempty"`
	UserID       string            `json:"-"`

	// Progress, when set, receives each section outcome as it is decided
	Progress func(models.SectionOutcome) `json:"-"`
}

// UpdateRunner runs updates in the background
type UpdateRunner interface {
	// Start acquires the projection and launches the update; conflicts are returned synchronously
	Start(ctx context.Context, req *UpdateRequest) (*models.UpdateRun, error)

	// Get returns a run's status
	Get(runID string) (*models.UpdateRun, error)

	// Cancel stops a running update before its next section
	Cancel(runID string) error

	// Progress returns the outcomes recorded from index on, with a channel
	// closed at the run's next change
	Progress(runID string, from int) (*RunProgress, error)
}

// RunProgress is a snapshot of an asynchronous update
type RunProgress struct {
	Run      *models.UpdateRun
	Outcomes []models.SectionOutcome
	Next     int
	Changed  <-chan struct{}
}

// SectionService handles locking, manual edits and history
type SectionService interface {
	Lock(ctx context.Context, req *LockSectionRequest) (*models.Section, error)
	Unlock(ctx context.Context, projectionID, sectionID string) (*models.Section, error)
	Edit(ctx context.Context, req *EditSectionRequest) (*models.SectionVersion, error)
	Revert(ctx context.Context, req *RevertSectionRequest) (*models.SectionVersion, error)
	History(ctx context.Context, projectionID, sectionID string) ([]models.SectionVersion, error)
}

// LockSectionRequest is the DTO for locking a section
type LockSectionRequest struct {
	ProjectionID string  `json:"-"`
	SectionID    string  `json:"-"`
	UserID       string  `json:"-"`
	Reason       *string `json:"reason,omitempty"`
}

// EditSectionRequest is the DTO for a manual edit
type EditSectionRequest struct {
	ProjectionID string `json:"-"`
	SectionID    string `json:"-"`
	UserID       string `json:"-"`
	Text         string `json:"text"`
	Format       string `json:"format,omitempty"` // "markdown" (default) or "html"
	LockAfter    bool   `json:"lock_after,omitempty"`
}

// RevertSectionRequest is the DTO for reverting to an earlier version
type RevertSectionRequest struct {
	ProjectionID   string `json:"-"`
	SectionID      string `json:"-"`
	UserID         string `json:"-"`
	SequenceNumber int    `json:"sequence_number"`
}

// ProjectionService creates and reads projections
type ProjectionService interface {
	Create(ctx context.Context, req *CreateProjectionRequest) (*models.Projection, error)
	Get(ctx context.Context, id string) (*models.Projection, error)
	List(ctx context.Context, projectID string) ([]models.Projection, error)
	UpdateOptions(ctx context.Context, id string) (*models.UpdateOptions, error)
	Export(ctx context.Context, id string, format string) (*Export, error)
}

// CreateProjectionRequest is the DTO for creating a projection.
// When ProductID is set, unset fields come from the product definition.
type CreateProjectionRequest struct {
	ProjectID         string           `json:"-"`
	ProductID         string           `json:"product_id,omitempty"`
	DefinitionID      string           `json:"definition_id,omitempty"`
	Name              string           `json:"name,omitempty"`
	Style             string           `json:"style,omitempty"`
	Length            string           `json:"length,omitempty"`
	VoiceGuidance     string           `json:"voice_guidance,omitempty"`
	DefaultUpdateMode string           `json:"default_update_mode,omitempty"`
	Sections          []SectionRequest `json:"sections,omitempty"`

	// Pool filters; empty admits everything
	ContributorFilter []string `json:"contributor_filter,omitempty"`
	TagFilter         []string `json:"tag_filter,omitempty"`
	ExcludeTags       []string `json:"exclude_tags,omitempty"`

	// AutoUpdateOnContent overrides the definition's auto_update when set
	AutoUpdateOnContent *bool `json:"auto_update_on_content,omitempty"`
}

// SectionRequest describes a section when not taken from a product definition
type SectionRequest struct {
	Key         string   `json:"key,omitempty"`
	Title       string   `json:"title"`
	Tags        []string `json:"tags,omitempty"`
	QuestionIDs []string `json:"question_ids,omitempty"`
}

// Export formats
const (
	ExportMarkdown = "markdown"
	ExportHTML     = "html"
)

// Export is a rendered projection
type Export struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	Body        string `json:"body"`
}

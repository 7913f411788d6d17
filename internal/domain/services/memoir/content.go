package memoir

import (
	"context"

	models "memoir/internal/domain/models/memoir"
)

// ContentService manages the append-only content pool
type ContentService interface {
	// Append adds a new item (version 1) to a project's pool
	Append(ctx context.Context, req *AppendContentRequest) (*models.ContentItem, error)

	// Supersede records a corrected version of an existing item
	Supersede(ctx context.Context, previousID string, req *SupersedeContentRequest) (*models.ContentItem, error)

	// Get retrieves one item
	Get(ctx context.Context, id string) (*models.ContentItem, error)

	// ListSince returns one page of items appended after a sequence
	ListSince(ctx context.Context, projectID string, afterSequence int64, limit int) (*ContentPage, error)

	// Iterate walks every item after a sequence, page by page
	Iterate(ctx context.Context, projectID string, afterSequence int64, fn func(models.ContentItem) error) error

	// ListCurrent returns the latest version of every item in the pool
	ListCurrent(ctx context.Context, projectID string) ([]models.ContentItem, error)

	// Lineage returns an item's versions, oldest first
	Lineage(ctx context.Context, id string) ([]models.ContentItem, error)
}

// AppendContentRequest is the DTO for adding content
type AppendContentRequest struct {
	ProjectID     string                 `json:"project_id"`
	ContributorID string                 `json:"contributor_id"`
	ContentType   string                 `json:"content_type"`
	Content       map[string]interface{} `json:"content"`
	Tags          []string               `json:"tags,omitempty"`
	QuestionID    *string                `json:"question_id,omitempty"`
}

// SupersedeContentRequest is the DTO for correcting content.
// Nil Tags and QuestionID inherit from the previous version.
type SupersedeContentRequest struct {
	ContributorID string                 `json:"contributor_id"`
	Content       map[string]interface{} `json:"content"`
	Tags          []string               `json:"tags,omitempty"`
	QuestionID    *string                `json:"question_id,omitempty"`
}

// ContentPage is one page of ListSince
type ContentPage struct {
	Items   []models.ContentItem `json:"items"`
	After   int64                `json:"after"`    // pass as afterSequence for the next page
	HasMore bool                 `json:"has_more"`
}

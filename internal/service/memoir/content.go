package memoir

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"memoir/internal/config"
	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	"memoir/internal/domain/repositories"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// contentService implements the ContentService interface
type contentService struct {
	contentRepo memoirRepo.ContentRepository
	txManager   repositories.TransactionManager
	clock       Clock
	logger      *slog.Logger
	hooks       []ContentHook
}

// NewContentService creates a new content pool service. hooks run after each
// successful Append.
func NewContentService(
	contentRepo memoirRepo.ContentRepository,
	txManager repositories.TransactionManager,
	clock Clock,
	logger *slog.Logger,
	hooks ...ContentHook,
) memoirSvc.ContentService {
	if clock == nil {
		clock = time.Now
	}
	return &contentService{
		contentRepo: contentRepo,
		txManager:   txManager,
		clock:       clock,
		logger:      logger,
		hooks:       hooks,
	}
}

// Append adds a new item to the pool
func (s *contentService) Append(ctx context.Context, req *memoirSvc.AppendContentRequest) (*models.ContentItem, error) {
	if err := s.validateAppendRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	now := s.clock()
	item := &models.ContentItem{
		ID:            uuid.NewString(),
		ProjectID:     req.ProjectID,
		ContributorID: req.ContributorID,
		ContentType:   models.ContentType(req.ContentType),
		Content:       req.Content,
		Tags:          NormalizeTags(req.Tags),
		QuestionID:    req.QuestionID,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.contentRepo.Append(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info("content appended",
		"id", item.ID,
		"project_id", item.ProjectID,
		"contributor_id", item.ContributorID,
		"content_type", item.ContentType,
		"sequence", item.Sequence,
	)

	for _, hook := range s.hooks {
		hook.ContentAppended(ctx, item)
	}

	return item, nil
}

// Supersede records a corrected version. Only the latest version of an item
// can be superseded.
func (s *contentService) Supersede(ctx context.Context, previousID string, req *memoirSvc.SupersedeContentRequest) (*models.ContentItem, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Content, validation.Required),
		validation.Field(&req.Tags, validation.Length(0, config.MaxTagsPerItem), validation.Each(validation.Length(1, config.MaxTagLength))),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var item *models.ContentItem
	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		prev, err := s.contentRepo.GetByID(ctx, previousID)
		if err != nil {
			return err
		}

		superseded, err := s.contentRepo.HasSuccessor(ctx, prev.ID)
		if err != nil {
			return err
		}
		if superseded {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("content item %s already has a newer version", prev.ID),
				Reason:       domain.ReasonNotLatest,
				ResourceType: "content_item",
				ResourceID:   prev.ID,
			}
		}

		if err := validatePayload(prev.ContentType, req.Content); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}

		contributorID := prev.ContributorID
		if req.ContributorID != "" {
			contributorID = req.ContributorID
		}
		tags := prev.Tags
		if req.Tags != nil {
			tags = NormalizeTags(req.Tags)
		}
		questionID := prev.QuestionID
		if req.QuestionID != nil {
			questionID = req.QuestionID
		}

		now := s.clock()
		previous := prev.ID
		item = &models.ContentItem{
			ID:                uuid.NewString(),
			ProjectID:         prev.ProjectID,
			ContributorID:     contributorID,
			ContentType:       prev.ContentType,
			Content:           req.Content,
			Tags:              tags,
			QuestionID:        questionID,
			Version:           prev.Version + 1,
			PreviousVersionID: &previous,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return s.contentRepo.Append(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("content superseded",
		"id", item.ID,
		"previous_version_id", previousID,
		"version", item.Version,
		"project_id", item.ProjectID,
	)

	return item, nil
}

// Get retrieves one item
func (s *contentService) Get(ctx context.Context, id string) (*models.ContentItem, error) {
	return s.contentRepo.GetByID(ctx, id)
}

// ListSince returns a page of items after a sequence
func (s *contentService) ListSince(ctx context.Context, projectID string, afterSequence int64, limit int) (*memoirSvc.ContentPage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project_id is required: %w", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = config.ContentPageSize
	}
	limit = min(limit, config.MaxContentPageSize)

	items, err := s.contentRepo.ListSince(ctx, projectID, afterSequence, limit+1)
	if err != nil {
		return nil, err
	}

	page := &memoirSvc.ContentPage{After: afterSequence}
	if len(items) > limit {
		items = items[:limit]
		page.HasMore = true
	}
	if len(items) > 0 {
		page.After = items[len(items)-1].Sequence
	}
	page.Items = items
	if page.Items == nil {
		page.Items = []models.ContentItem{}
	}
	return page, nil
}

// Iterate walks every item after a sequence in pool order
func (s *contentService) Iterate(ctx context.Context, projectID string, afterSequence int64, fn func(models.ContentItem) error) error {
	after := afterSequence
	for {
		page, err := s.ListSince(ctx, projectID, after, config.ContentPageSize)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if !page.HasMore {
			return nil
		}
		after = page.After
	}
}

// ListCurrent returns the pool without superseded versions
func (s *contentService) ListCurrent(ctx context.Context, projectID string) ([]models.ContentItem, error) {
	items, err := s.contentRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return LatestVersions(items), nil
}

// Lineage returns every version of an item, oldest first
func (s *contentService) Lineage(ctx context.Context, id string) ([]models.ContentItem, error) {
	var chain []models.ContentItem
	seen := make(map[string]bool)

	next := &id
	for next != nil {
		if seen[*next] {
			return nil, fmt.Errorf("content lineage of %s loops at %s", id, *next)
		}
		seen[*next] = true

		item, err := s.contentRepo.GetByID(ctx, *next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *item)
		next = item.PreviousVersionID
	}

	slices.Reverse(chain)
	return chain, nil
}

// LatestVersions drops every item that has been superseded by another item in the slice
func LatestVersions(items []models.ContentItem) []models.ContentItem {
	superseded := make(map[string]bool)
	for _, item := range items {
		if item.PreviousVersionID != nil {
			superseded[*item.PreviousVersionID] = true
		}
	}

	current := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		if !superseded[item.ID] {
			current = append(current, item)
		}
	}
	return current
}

// validateAppendRequest validates a content append
func (s *contentService) validateAppendRequest(req *memoirSvc.AppendContentRequest) error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.ProjectID, validation.Required),
		validation.Field(&req.ContributorID, validation.Required),
		validation.Field(&req.ContentType, validation.Required, validation.In(contentTypeValues()...)),
		validation.Field(&req.Content, validation.Required),
		validation.Field(&req.Tags, validation.Length(0, config.MaxTagsPerItem), validation.Each(validation.Length(1, config.MaxTagLength))),
	); err != nil {
		return err
	}
	return validatePayload(models.ContentType(req.ContentType), req.Content)
}

// validatePayload checks the fields each content type cannot do without
func validatePayload(contentType models.ContentType, content map[string]interface{}) error {
	var required string
	switch contentType {
	case models.ContentTypeText:
		required = "text"
	case models.ContentTypeStructuredQA:
		required = "answer_text"
	default:
		return nil
	}

	v, ok := content[required].(string)
	if !ok || v == "" {
		return fmt.Errorf("content.%s is required for %s items", required, contentType)
	}
	return nil
}

func contentTypeValues() []interface{} {
	values := make([]interface{}, len(models.ContentTypes))
	for i, t := range models.ContentTypes {
		values[i] = string(t)
	}
	return values
}

package memoir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	llmSvc "memoir/internal/domain/services/llm"
	memoirSvc "memoir/internal/domain/services/memoir"
)

// DefaultMaxSyncAttempts is how many syncs may fail on one item before it is skipped.
const DefaultMaxSyncAttempts = 3

const maxEventLabelRunes = 80

// narrativeService implements the NarrativeService interface
type narrativeService struct {
	narrativeRepo memoirRepo.NarrativeRepository
	contentRepo   memoirRepo.ContentRepository
	locker        memoirRepo.Locker
	generator     llmSvc.TextGenerator
	maxAttempts   int
	clock         Clock
	logger        *slog.Logger
}

// NewNarrativeService creates a new narrative context maintainer
func NewNarrativeService(
	narrativeRepo memoirRepo.NarrativeRepository,
	contentRepo memoirRepo.ContentRepository,
	locker memoirRepo.Locker,
	generator llmSvc.TextGenerator,
	maxAttempts int,
	clock Clock,
	logger *slog.Logger,
) memoirSvc.NarrativeService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxSyncAttempts
	}
	if clock == nil {
		clock = time.Now
	}
	return &narrativeService{
		narrativeRepo: narrativeRepo,
		contentRepo:   contentRepo,
		locker:        locker,
		generator:     generator,
		maxAttempts:   maxAttempts,
		clock:         clock,
		logger:        logger,
	}
}

// Get returns the stored context, or an empty one
func (s *narrativeService) Get(ctx context.Context, projectID string) (*models.NarrativeContext, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project_id is required: %w", domain.ErrValidation)
	}

	nc, err := s.narrativeRepo.Get(ctx, projectID)
	if errors.Is(err, domain.ErrNotFound) {
		return models.NewNarrativeContext(projectID), nil
	}
	if err != nil {
		return nil, err
	}
	if nc.FailedAttempts == nil {
		nc.FailedAttempts = make(map[string]int)
	}
	return nc, nil
}

// IsStale reports whether the pool head is past the high-water mark
func (s *narrativeService) IsStale(ctx context.Context, projectID string) (bool, error) {
	nc, err := s.Get(ctx, projectID)
	if err != nil {
		return false, err
	}
	head, err := s.contentRepo.HeadSequence(ctx, projectID)
	if err != nil {
		return false, err
	}
	return head > nc.LastProcessedSequence, nil
}

// Sync processes pool items past the high-water mark in sequence order.
// The first failing item stops the pass so the mark never moves past it;
// after maxAttempts failed passes the item is skipped for good.
func (s *narrativeService) Sync(ctx context.Context, projectID string) (*memoirSvc.SyncResult, error) {
	release, err := s.locker.Lock(ctx, "narrative:"+projectID)
	if err != nil {
		return nil, fmt.Errorf("acquire narrative lock: %w", err)
	}
	defer release()

	nc, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	items, err := s.contentRepo.ListSince(ctx, projectID, nc.LastProcessedSequence, 0)
	if err != nil {
		return nil, err
	}

	result := &memoirSvc.SyncResult{}
	for i := range items {
		item := &items[i]
		if ctx.Err() != nil {
			break
		}

		if err := s.ingest(ctx, nc, item); err != nil {
			nc.FailedAttempts[item.ID]++
			attempts := nc.FailedAttempts[item.ID]
			if attempts < s.maxAttempts {
				nc.MarkPending(item.ID)
				s.logger.Warn("narrative sync deferred item",
					"project_id", projectID,
					"content_id", item.ID,
					"attempt", attempts,
					"error", err,
				)
				break
			}

			nc.ClearPending(item.ID)
			nc.SkippedContentIDs = append(nc.SkippedContentIDs, item.ID)
			result.Skipped = append(result.Skipped, item.ID)
			s.logger.Error("narrative sync skipped item",
				"project_id", projectID,
				"content_id", item.ID,
				"attempts", attempts,
				"error", err,
			)
		} else {
			nc.ClearPending(item.ID)
			result.Processed++
		}

		id := item.ID
		nc.LastProcessedSequence = item.Sequence
		nc.LastProcessedContentID = &id
	}

	nc.UpdatedAt = s.clock()
	if err := s.narrativeRepo.Save(ctx, nc); err != nil {
		return nil, err
	}

	result.Context = nc
	result.Pending = nc.PendingContentIDs

	s.logger.Info("narrative synced",
		"project_id", projectID,
		"processed", result.Processed,
		"pending", len(result.Pending),
		"skipped", len(result.Skipped),
		"high_water_mark", nc.LastProcessedSequence,
	)

	return result, nil
}

// ingest computes an item's contributions and merges them only if every
// extraction succeeded.
func (s *narrativeService) ingest(ctx context.Context, nc *models.NarrativeContext, item *models.ContentItem) error {
	var (
		themes *themeExtraction
		facts  *factExtraction
	)

	if item.ContentType != models.ContentTypeStructuredQA {
		if text := item.Text(); text != "" {
			var err error
			themes, facts, err = s.extract(ctx, nc, item)
			if err != nil {
				return err
			}
		}
	}

	for _, tag := range item.Tags {
		nc.AddTheme(NormalizeTag(tag), tag, "", item.ID)
	}

	if item.ContentType == models.ContentTypeStructuredQA && item.QuestionID != nil {
		nc.AddFact("question:"+*item.QuestionID, item.Answer(), item.ID)
	}

	if date := item.Date(); date != "" {
		nc.AddEvent(models.TimelineEvent{Date: date, Label: eventLabel(item), ContentID: item.ID})
	}

	if themes != nil {
		for _, t := range themes.Themes {
			nc.AddTheme(NormalizeTag(t.Name), t.Name, t.Description, item.ID)
		}
		if themes.Summary != "" {
			nc.Summary = themes.Summary
		}
		if themes.EmotionalTone != "" {
			nc.EmotionalTone = themes.EmotionalTone
		}
	}
	if facts != nil {
		for _, f := range facts.Facts {
			nc.AddFact(f.Key, f.Value, item.ID)
		}
		for _, e := range facts.Events {
			nc.AddEvent(e)
		}
	}
	return nil
}

func (s *narrativeService) extract(ctx context.Context, nc *models.NarrativeContext, item *models.ContentItem) (*themeExtraction, *factExtraction, error) {
	req := &llmSvc.GenerationRequest{
		Task:      llmSvc.TaskThemeExtraction,
		ProjectID: item.ProjectID,
		Items:     []models.ContentItem{*item},
		Narrative: nc,
	}

	raw, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	themes, err := parseThemeExtraction(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("theme extraction for %s: %w", item.ID, err)
	}

	req.Task = llmSvc.TaskFactExtraction
	raw, err = s.generator.Generate(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	facts, err := parseFactExtraction(raw, item.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("fact extraction for %s: %w", item.ID, err)
	}

	return themes, facts, nil
}

func eventLabel(item *models.ContentItem) string {
	label := item.Text()
	if q, ok := item.Content["question_text"].(string); ok && q != "" {
		label = q
	}
	runes := []rune(label)
	if len(runes) > maxEventLabelRunes {
		return string(runes[:maxEventLabelRunes]) + "…"
	}
	return label
}

// Package seed fills a project with sample memories and a generated memoir
package seed

import (
	"context"
	"log/slog"

	models "memoir/internal/domain/models/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
)

// Seeder writes demo content through the services
type Seeder struct {
	content     memoirSvc.ContentService
	narrative   memoirSvc.NarrativeService
	projections memoirSvc.ProjectionService
	engine      memoirSvc.ProjectionEngine
	logger      *slog.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(
	content memoirSvc.ContentService,
	narrative memoirSvc.NarrativeService,
	projections memoirSvc.ProjectionService,
	engine memoirSvc.ProjectionEngine,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{
		content:     content,
		narrative:   narrative,
		projections: projections,
		engine:      engine,
		logger:      logger,
	}
}

// Result summarizes a seeding run
type Result struct {
	Items      []models.ContentItem
	Projection *models.Projection
	Update     *models.UpdateResult
}

// Seed appends the sample memories, syncs the narrative and creates the
// product's default projection. When generate is set the projection is
// generated as well.
func (s *Seeder) Seed(ctx context.Context, projectID, contributorID, productID string, generate bool) (*Result, error) {
	result := &Result{}

	for _, m := range Memories() {
		item, err := s.content.Append(ctx, &memoirSvc.AppendContentRequest{
			ProjectID:     projectID,
			ContributorID: contributorID,
			ContentType:   string(m.Type),
			Content:       m.Content,
			Tags:          m.Tags,
			QuestionID:    m.QuestionID,
		})
		if err != nil {
			return nil, err
		}
		s.logger.Debug("seeded memory", "id", item.ID, "sequence", item.Sequence)
		result.Items = append(result.Items, *item)
	}

	if _, err := s.narrative.Sync(ctx, projectID); err != nil {
		return nil, err
	}

	projection, err := s.projections.Create(ctx, &memoirSvc.CreateProjectionRequest{
		ProjectID: projectID,
		ProductID: productID,
	})
	if err != nil {
		return nil, err
	}
	result.Projection = projection

	if !generate {
		return result, nil
	}

	update, err := s.engine.Update(ctx, &memoirSvc.UpdateRequest{
		ProjectionID: projection.ID,
		Mode:         models.ModeGenerate,
		UserID:       contributorID,
	})
	result.Update = update
	if err != nil {
		return result, err
	}
	return result, nil
}

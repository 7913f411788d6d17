package memoir

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	"memoir/internal/repository/postgres"
)

// PostgresNarrativeRepository implements NarrativeRepository. Themes, facts,
// the timeline and retry counters are stored as JSONB documents.
type PostgresNarrativeRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewNarrativeRepository creates a new narrative repository
func NewNarrativeRepository(config *postgres.RepositoryConfig) memoirRepo.NarrativeRepository {
	return &PostgresNarrativeRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Get returns a project's narrative context
func (r *PostgresNarrativeRepository) Get(ctx context.Context, projectID string) (*models.NarrativeContext, error) {
	query := fmt.Sprintf(`
		SELECT project_id, themes, facts, timeline, summary, emotional_tone,
			last_processed_sequence, last_processed_content_id, pending_content_ids,
			failed_attempts, skipped_content_ids, updated_at
		FROM %s
		WHERE project_id = $1
	`, r.tables.NarrativeContexts)

	nc := models.NewNarrativeContext(projectID)
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, projectID).Scan(
		&nc.ProjectID,
		&nc.Themes,
		&nc.Facts,
		&nc.Timeline,
		&nc.Summary,
		&nc.EmotionalTone,
		&nc.LastProcessedSequence,
		&nc.LastProcessedContentID,
		&nc.PendingContentIDs,
		&nc.FailedAttempts,
		&nc.SkippedContentIDs,
		&nc.UpdatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("narrative context for project %s: %w", projectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get narrative context: %w", err)
	}

	// JSON null decodes to nil maps
	if nc.Themes == nil {
		nc.Themes = make(map[string]*models.Theme)
	}
	if nc.Facts == nil {
		nc.Facts = make(map[string]*models.Fact)
	}
	if nc.FailedAttempts == nil {
		nc.FailedAttempts = make(map[string]int)
	}
	return nc, nil
}

// Save upserts a project's narrative context
func (r *PostgresNarrativeRepository) Save(ctx context.Context, nc *models.NarrativeContext) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (project_id, themes, facts, timeline, summary, emotional_tone,
			last_processed_sequence, last_processed_content_id, pending_content_ids,
			failed_attempts, skipped_content_ids, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (project_id) DO UPDATE SET
			themes = EXCLUDED.themes,
			facts = EXCLUDED.facts,
			timeline = EXCLUDED.timeline,
			summary = EXCLUDED.summary,
			emotional_tone = EXCLUDED.emotional_tone,
			last_processed_sequence = EXCLUDED.last_processed_sequence,
			last_processed_content_id = EXCLUDED.last_processed_content_id,
			pending_content_ids = EXCLUDED.pending_content_ids,
			failed_attempts = EXCLUDED.failed_attempts,
			skipped_content_ids = EXCLUDED.skipped_content_ids,
			updated_at = EXCLUDED.updated_at
	`, r.tables.NarrativeContexts)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		nc.ProjectID,
		nc.Themes,
		nc.Facts,
		nonNilEvents(nc.Timeline),
		nc.Summary,
		nc.EmotionalTone,
		nc.LastProcessedSequence,
		nc.LastProcessedContentID,
		nonNil(nc.PendingContentIDs),
		nc.FailedAttempts,
		nonNil(nc.SkippedContentIDs),
		nc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save narrative context: %w", err)
	}
	return nil
}

func nonNilEvents(events []models.TimelineEvent) []models.TimelineEvent {
	if events == nil {
		return []models.TimelineEvent{}
	}
	return events
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

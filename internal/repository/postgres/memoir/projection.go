package memoir

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	"memoir/internal/repository/postgres"
)

const (
	projectionColumns = `id, project_id, name, product_id, definition_id, style, length,
	voice_guidance, default_update_mode, contributor_filter, tag_filter, exclude_tags,
	auto_update_on_content, version, word_count, last_update_mode, created_at, updated_at`

	sectionColumns = `id, projection_id, template_key, title, section_order, lock_state,
	locked_at, locked_by, lock_reason, current_version_id, source_content_ids, tags,
	question_ids, text, word_count, last_updated_at, created_at`

	versionColumns = `id, section_id, sequence_number, text, source_content_ids,
	generated_by, created_by, created_at`
)

// PostgresProjectionRepository implements ProjectionRepository
type PostgresProjectionRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewProjectionRepository creates a new projection repository
func NewProjectionRepository(config *postgres.RepositoryConfig) memoirRepo.ProjectionRepository {
	return &PostgresProjectionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts the projection and its sections in one batch. Outside a
// transaction the batch runs as a single implicit transaction.
func (r *PostgresProjectionRepository) Create(ctx context.Context, projection *models.Projection) error {
	batch := &pgx.Batch{}
	batch.Queue(fmt.Sprintf(`
		INSERT INTO %s (id, project_id, name, product_id, definition_id, style, length,
			voice_guidance, default_update_mode, contributor_filter, tag_filter, exclude_tags,
			auto_update_on_content, version, word_count, last_update_mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, r.tables.Projections),
		projection.ID,
		projection.ProjectID,
		projection.Name,
		projection.ProductID,
		projection.DefinitionID,
		projection.Style,
		projection.Length,
		projection.VoiceGuidance,
		projection.DefaultUpdateMode,
		nonNil(projection.ContributorFilter),
		nonNil(projection.TagFilter),
		nonNil(projection.ExcludeTags),
		projection.AutoUpdate,
		projection.Version,
		projection.WordCount,
		projection.LastUpdateMode,
		projection.CreatedAt,
		projection.UpdatedAt,
	)

	sectionInsert := fmt.Sprintf(`
		INSERT INTO %s (id, projection_id, template_key, title, section_order, lock_state,
			source_content_ids, tags, question_ids, text, word_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.tables.Sections)
	for _, s := range projection.Sections {
		batch.Queue(sectionInsert,
			s.ID,
			projection.ID,
			s.Key,
			s.Title,
			s.Order,
			s.LockState,
			nonNil(s.SourceContentIDs),
			nonNil(s.Tags),
			nonNil(s.QuestionIDs),
			s.Text,
			s.WordCount,
			s.CreatedAt,
		)
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	results := executor.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if postgres.IsPgDuplicateError(err) {
				return &domain.ConflictError{
					Message:      fmt.Sprintf("projection %s already exists", projection.ID),
					Reason:       domain.ReasonAlreadyExists,
					ResourceType: "projection",
					ResourceID:   projection.ID,
				}
			}
			return fmt.Errorf("create projection: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("create projection: %w", err)
	}
	return nil
}

// GetByID retrieves a projection with its sections
func (r *PostgresProjectionRepository) GetByID(ctx context.Context, id string) (*models.Projection, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, projectionColumns, r.tables.Projections)

	executor := postgres.GetExecutor(ctx, r.pool)
	projection, err := scanProjection(executor.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidTextError(err) {
			return nil, fmt.Errorf("projection %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get projection: %w", err)
	}

	sections, err := r.listSections(ctx, []string{projection.ID})
	if err != nil {
		return nil, err
	}
	projection.Sections = sections[projection.ID]
	if projection.Sections == nil {
		projection.Sections = []models.Section{}
	}
	return projection, nil
}

// ListByProject lists a project's projections, oldest first
func (r *PostgresProjectionRepository) ListByProject(ctx context.Context, projectID string) ([]models.Projection, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE project_id = $1
		ORDER BY created_at, id
	`, projectionColumns, r.tables.Projections)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list projections: %w", err)
	}
	defer rows.Close()

	projections := []models.Projection{}
	ids := []string{}
	for rows.Next() {
		p, err := scanProjection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan projection: %w", err)
		}
		projections = append(projections, *p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projections: %w", err)
	}

	sections, err := r.listSections(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range projections {
		projections[i].Sections = sections[projections[i].ID]
		if projections[i].Sections == nil {
			projections[i].Sections = []models.Section{}
		}
	}
	return projections, nil
}

// listSections loads sections of several projections, keyed by projection ID
func (r *PostgresProjectionRepository) listSections(ctx context.Context, projectionIDs []string) (map[string][]models.Section, error) {
	grouped := make(map[string][]models.Section, len(projectionIDs))
	if len(projectionIDs) == 0 {
		return grouped, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE projection_id::text = ANY($1)
		ORDER BY projection_id, section_order
	`, sectionColumns, r.tables.Sections)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, projectionIDs)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		grouped[s.ProjectionID] = append(grouped[s.ProjectionID], *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return grouped, nil
}

// GetSection retrieves one section of a projection
func (r *PostgresProjectionRepository) GetSection(ctx context.Context, projectionID, sectionID string) (*models.Section, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id = $1 AND projection_id = $2
	`, sectionColumns, r.tables.Sections)

	executor := postgres.GetExecutor(ctx, r.pool)
	section, err := scanSection(executor.QueryRow(ctx, query, sectionID, projectionID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidTextError(err) {
			return nil, fmt.Errorf("section %s: %w", sectionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get section: %w", err)
	}
	return section, nil
}

// UpdateSectionLock writes the lock fields of a section
func (r *PostgresProjectionRepository) UpdateSectionLock(ctx context.Context, section *models.Section) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET lock_state = $2, locked_at = $3, locked_by = $4, lock_reason = $5
		WHERE id = $1
	`, r.tables.Sections)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		section.ID,
		section.LockState,
		section.LockedAt,
		section.LockedBy,
		section.LockReason,
	)
	if err != nil {
		return fmt.Errorf("update section lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("section %s: %w", section.ID, domain.ErrNotFound)
	}
	return nil
}

// AppendVersion inserts the next version of a section. Callers hold the
// projection lock, and the unique (section_id, sequence_number) constraint
// rejects a concurrent writer that slipped past it.
func (r *PostgresProjectionRepository) AppendVersion(ctx context.Context, version *models.SectionVersion) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, section_id, sequence_number, text, source_content_ids,
			generated_by, created_by, created_at)
		SELECT $1::uuid, $2::uuid, COALESCE(MAX(sequence_number), 0) + 1,
			$3::text, $4::text[], $5::text, $6::text, $7::timestamptz
		FROM %[1]s
		WHERE section_id = $2::uuid
		RETURNING sequence_number
	`, r.tables.SectionVersions)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		version.ID,
		version.SectionID,
		version.Text,
		nonNil(version.SourceContentIDs),
		version.GeneratedBy,
		version.CreatedBy,
		version.CreatedAt,
	).Scan(&version.SequenceNumber)

	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("section %s: %w", version.SectionID, domain.ErrNotFound)
		}
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("section %s was written concurrently", version.SectionID),
				Reason:       domain.ReasonAlreadyUpdating,
				ResourceType: "section",
				ResourceID:   version.SectionID,
			}
		}
		return fmt.Errorf("append section version: %w", err)
	}
	return nil
}

// SetCurrentVersion points a section at a version and mirrors its text
func (r *PostgresProjectionRepository) SetCurrentVersion(ctx context.Context, section *models.Section) error {
	tag, err := r.setCurrentVersion(ctx, section, "")
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("section %s: %w", section.ID, domain.ErrNotFound)
	}
	return nil
}

// SetCurrentVersionIfUnlocked re-checks lock_state in the UPDATE itself, so
// a lock committed after the caller read the section still wins
func (r *PostgresProjectionRepository) SetCurrentVersionIfUnlocked(ctx context.Context, section *models.Section) (bool, error) {
	tag, err := r.setCurrentVersion(ctx, section, "AND lock_state = 'unlocked'")
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	if _, err := r.GetSection(ctx, section.ProjectionID, section.ID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PostgresProjectionRepository) setCurrentVersion(ctx context.Context, section *models.Section, condition string) (pgconn.CommandTag, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET current_version_id = $2, source_content_ids = $3, text = $4,
			word_count = $5, last_updated_at = $6
		WHERE id = $1 %s
	`, r.tables.Sections, condition)

	executor := postgres.GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		section.ID,
		section.CurrentVersionID,
		nonNil(section.SourceContentIDs),
		section.Text,
		section.WordCount,
		section.LastUpdatedAt,
	)
	if err != nil {
		return tag, fmt.Errorf("set current version: %w", err)
	}
	return tag, nil
}

// ListVersions returns a section's history oldest first
func (r *PostgresProjectionRepository) ListVersions(ctx context.Context, sectionID string) ([]models.SectionVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE section_id = $1
		ORDER BY sequence_number
	`, versionColumns, r.tables.SectionVersions)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, sectionID)
	if err != nil {
		if postgres.IsPgInvalidTextError(err) {
			return []models.SectionVersion{}, nil
		}
		return nil, fmt.Errorf("list section versions: %w", err)
	}
	defer rows.Close()

	versions := []models.SectionVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section version: %w", err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate section versions: %w", err)
	}
	return versions, nil
}

// GetVersionBySequence returns one entry of a section's history
func (r *PostgresProjectionRepository) GetVersionBySequence(ctx context.Context, sectionID string, sequence int) (*models.SectionVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE section_id = $1 AND sequence_number = $2
	`, versionColumns, r.tables.SectionVersions)

	executor := postgres.GetExecutor(ctx, r.pool)
	version, err := scanVersion(executor.QueryRow(ctx, query, sectionID, sequence))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidTextError(err) {
			return nil, &domain.NotFoundError{
				Message: fmt.Sprintf("section %s has no version %d", sectionID, sequence),
			}
		}
		return nil, fmt.Errorf("get section version: %w", err)
	}
	return version, nil
}

// Touch records a projection-level change and returns the resulting version
func (r *PostgresProjectionRepository) Touch(ctx context.Context, projectionID string, change memoirRepo.ProjectionChange) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET version = version + CASE WHEN $2 THEN 1 ELSE 0 END,
			last_update_mode = COALESCE(NULLIF($3, ''), last_update_mode),
			word_count = $4,
			updated_at = $5
		WHERE id = $1
		RETURNING version
	`, r.tables.Projections)

	var version int
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		projectionID,
		change.Bump,
		change.Mode,
		change.WordCount,
		change.UpdatedAt,
	).Scan(&version)
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidTextError(err) {
			return 0, fmt.Errorf("projection %s: %w", projectionID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("touch projection: %w", err)
	}
	return version, nil
}

func scanProjection(row pgx.Row) (*models.Projection, error) {
	var p models.Projection
	err := row.Scan(
		&p.ID,
		&p.ProjectID,
		&p.Name,
		&p.ProductID,
		&p.DefinitionID,
		&p.Style,
		&p.Length,
		&p.VoiceGuidance,
		&p.DefaultUpdateMode,
		&p.ContributorFilter,
		&p.TagFilter,
		&p.ExcludeTags,
		&p.AutoUpdate,
		&p.Version,
		&p.WordCount,
		&p.LastUpdateMode,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanSection(row pgx.Row) (*models.Section, error) {
	var s models.Section
	err := row.Scan(
		&s.ID,
		&s.ProjectionID,
		&s.Key,
		&s.Title,
		&s.Order,
		&s.LockState,
		&s.LockedAt,
		&s.LockedBy,
		&s.LockReason,
		&s.CurrentVersionID,
		&s.SourceContentIDs,
		&s.Tags,
		&s.QuestionIDs,
		&s.Text,
		&s.WordCount,
		&s.LastUpdatedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanVersion(row pgx.Row) (*models.SectionVersion, error) {
	var v models.SectionVersion
	err := row.Scan(
		&v.ID,
		&v.SectionID,
		&v.SequenceNumber,
		&v.Text,
		&v.SourceContentIDs,
		&v.GeneratedBy,
		&v.CreatedBy,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

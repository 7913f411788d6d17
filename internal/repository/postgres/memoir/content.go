package memoir

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	"memoir/internal/domain/repositories"
	memoirRepo "memoir/internal/domain/repositories/memoir"
	"memoir/internal/repository/postgres"
)

const contentColumns = `id, project_id, contributor_id, content_type, content, tags,
	question_id, version, previous_version_id, sequence, created_at, updated_at`

// PostgresContentRepository implements ContentRepository
type PostgresContentRepository struct {
	pool      *pgxpool.Pool
	tables    *postgres.TableNames
	txManager repositories.TransactionManager
	logger    *slog.Logger
}

// NewContentRepository creates a new content repository
func NewContentRepository(config *postgres.RepositoryConfig) memoirRepo.ContentRepository {
	return &PostgresContentRepository{
		pool:      config.Pool,
		tables:    config.Tables,
		txManager: postgres.NewTransactionManager(config.Pool, config.Logger),
		logger:    config.Logger,
	}
}

// Append inserts an item. The sequence comes from the table's bigserial,
// drawn while holding a transaction-scoped lock on the project's pool, so
// within a project sequences become visible in the order they were drawn
// and a reader's high-water mark never skips an uncommitted item.
func (r *PostgresContentRepository) Append(ctx context.Context, item *models.ContentItem) error {
	return r.txManager.ExecTx(ctx, func(ctx context.Context) error {
		executor := postgres.GetExecutor(ctx, r.pool)
		if _, err := executor.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			poolLockKey(item.ProjectID),
		); err != nil {
			return fmt.Errorf("lock content pool: %w", err)
		}
		return r.insert(ctx, item)
	})
}

func poolLockKey(projectID string) string {
	return "pool:" + projectID
}

func (r *PostgresContentRepository) insert(ctx context.Context, item *models.ContentItem) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, project_id, contributor_id, content_type, content, tags,
			question_id, version, previous_version_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING sequence
	`, r.tables.ContentItems)

	content := item.Content
	if content == nil {
		content = map[string]interface{}{}
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		item.ID,
		item.ProjectID,
		item.ContributorID,
		item.ContentType,
		content,
		tags,
		item.QuestionID,
		item.Version,
		item.PreviousVersionID,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&item.Sequence)

	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			if item.PreviousVersionID != nil {
				return &domain.ConflictError{
					Message:      fmt.Sprintf("content item %s already has a newer version", *item.PreviousVersionID),
					Reason:       domain.ReasonNotLatest,
					ResourceType: "content_item",
					ResourceID:   *item.PreviousVersionID,
				}
			}
			return &domain.ConflictError{
				Message:      fmt.Sprintf("content item %s already exists", item.ID),
				Reason:       domain.ReasonAlreadyExists,
				ResourceType: "content_item",
				ResourceID:   item.ID,
			}
		}
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("previous version of content item %s: %w", item.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("append content item: %w", err)
	}

	return nil
}

// GetByID retrieves an item by ID
func (r *PostgresContentRepository) GetByID(ctx context.Context, id string) (*models.ContentItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, contentColumns, r.tables.ContentItems)

	executor := postgres.GetExecutor(ctx, r.pool)
	item, err := scanContentItem(executor.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidTextError(err) {
			return nil, fmt.Errorf("content item %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get content item: %w", err)
	}
	return item, nil
}

// GetMany retrieves the items with the given IDs in sequence order
func (r *PostgresContentRepository) GetMany(ctx context.Context, ids []string) ([]models.ContentItem, error) {
	if len(ids) == 0 {
		return []models.ContentItem{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id::text = ANY($1)
		ORDER BY sequence
	`, contentColumns, r.tables.ContentItems)

	return r.list(ctx, query, ids)
}

// ListSince pages through a project's pool by sequence. A limit of 0 means no limit.
func (r *PostgresContentRepository) ListSince(ctx context.Context, projectID string, afterSequence int64, limit int) ([]models.ContentItem, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE project_id = $1 AND sequence > $2
		ORDER BY sequence
		LIMIT $3
	`, contentColumns, r.tables.ContentItems)

	var max *int
	if limit > 0 {
		max = &limit
	}
	return r.list(ctx, query, projectID, afterSequence, max)
}

// ListByProject returns the whole pool of a project
func (r *PostgresContentRepository) ListByProject(ctx context.Context, projectID string) ([]models.ContentItem, error) {
	return r.ListSince(ctx, projectID, 0, 0)
}

// HeadSequence returns the newest sequence of a project's pool
func (r *PostgresContentRepository) HeadSequence(ctx context.Context, projectID string) (int64, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(sequence), 0) FROM %s WHERE project_id = $1`, r.tables.ContentItems)

	var head int64
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, projectID).Scan(&head); err != nil {
		return 0, fmt.Errorf("head sequence: %w", err)
	}
	return head, nil
}

// HasSuccessor reports whether a newer version of id exists
func (r *PostgresContentRepository) HasSuccessor(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE previous_version_id::text = $1)`, r.tables.ContentItems)

	var exists bool
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check successor: %w", err)
	}
	return exists, nil
}

func (r *PostgresContentRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.ContentItem, error) {
	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	items := []models.ContentItem{}
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return items, nil
}

func scanContentItem(row pgx.Row) (*models.ContentItem, error) {
	var item models.ContentItem
	err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.ContributorID,
		&item.ContentType,
		&item.Content,
		&item.Tags,
		&item.QuestionID,
		&item.Version,
		&item.PreviousVersionID,
		&item.Sequence,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"memoir/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds schema-qualified, quoted table names
type TableNames struct {
	Schema            string
	ContentItems      string
	NarrativeContexts string
	Projections       string
	Sections          string
	SectionVersions   string
}

// NewTableNames qualifies every table with the environment's schema
func NewTableNames(schema string) *TableNames {
	qualify := func(table string) string {
		return pgx.Identifier{schema, table}.Sanitize()
	}
	return &TableNames{
		Schema:            schema,
		ContentItems:      qualify("content_items"),
		NarrativeContexts: qualify("narrative_contexts"),
		Projections:       qualify("projections"),
		Sections:          qualify("sections"),
		SectionVersions:   qualify("section_versions"),
	}
}

// CreateConnectionPool creates a new pgx connection pool with automatic PgBouncer compatibility.
//
// Port 6543 (Supabase's transaction pooler) does not support prepared
// statements, so unless default_query_exec_mode is set explicitly in the
// connection string, the pool switches to QueryExecModeCacheDescribe there.
// That mode keeps the extended protocol, which JSONB encoding of maps needs.
//
// Table names are interpolated with fmt.Sprintf before statements are
// prepared, so each schema gets its own statement cache entries.
func CreateConnectionPool(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		logger.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the environment's schema if it does not exist
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())
	if _, err := pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

// GetExecutor returns the transaction stored in ctx, or the pool when there
// is none, so repositories join a caller's transaction automatically.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}

package migrations

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Status describes the schema version of a database relative to this binary.
type Status struct {
	Version uint `json:"version"`
	Latest  uint `json:"latest"`
	Dirty   bool `json:"dirty"`
}

// Pending reports how many migrations have not been applied.
func (s Status) Pending() uint {
	if s.Version >= s.Latest {
		return 0
	}
	return s.Latest - s.Version
}

// MigrateUp applies every pending migration in schema. The schema must exist.
func MigrateUp(databaseURL, schema string) error {
	m, err := newMigrate(databaseURL, schema)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(databaseURL, schema string, steps int) error {
	if steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", steps)
	}

	m, err := newMigrate(databaseURL, schema)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

// CheckStatus returns the applied and latest versions. A database that was
// never migrated reports version 0.
func CheckStatus(databaseURL, schema string) (*Status, error) {
	m, err := newMigrate(databaseURL, schema)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	latest, err := LatestVersion()
	if err != nil {
		return nil, err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("failed to get database version: %w", err)
	}
	return &Status{Version: version, Latest: latest, Dirty: dirty}, nil
}

// LatestVersion returns the highest migration version embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()
	return getLatestVersion(src)
}

func newMigrate(databaseURL, schema string) (*migrate.Migrate, error) {
	target, err := migrateURL(databaseURL, schema)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// migrateURL rewrites a postgres URL for the pgx5 driver and pins search_path
// so both the tables and the version table land in schema.
func migrateURL(databaseURL, schema string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql", "pgx5":
		u.Scheme = "pgx5"
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func getLatestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}

	latest := version
	for {
		next, err := src.Next(latest)
		if err != nil {
			// os.ErrNotExist marks the end of the source
			break
		}
		latest = next
	}
	return latest, nil
}

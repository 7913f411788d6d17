package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	memoirRepo "memoir/internal/domain/repositories/memoir"
)

// AdvisoryLocker implements Locker with session-level Postgres advisory locks,
// so every server sharing the database sees the same lock.
//
// A session lock belongs to one connection, so the connection is held out of
// the pool until release.
type AdvisoryLocker struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAdvisoryLocker creates a locker backed by pool
func NewAdvisoryLocker(pool *pgxpool.Pool, logger *slog.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, logger: logger}
}

var _ memoirRepo.Locker = (*AdvisoryLocker)(nil)

func (l *AdvisoryLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection for lock %s: %w", key, err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try lock %s: %w", key, err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	return l.releaser(conn, key), true, nil
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for lock %s: %w", key, err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		// A cancelled wait may leave the session in an unknown state
		conn.Conn().Close(context.WithoutCancel(ctx))
		conn.Release()
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return l.releaser(conn, key), nil
}

func (l *AdvisoryLocker) releaser(conn *pgxpool.Conn, key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
				l.logger.Warn("advisory unlock failed, dropping connection", "key", key, "error", err)
				conn.Conn().Close(context.Background())
			}
			conn.Release()
		})
	}
}

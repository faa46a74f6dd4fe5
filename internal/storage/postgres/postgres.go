package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/sift/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS search_attempts (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	strategy TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	category TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	signal TEXT NOT NULL,
	detection_src TEXT,
	result_count INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS search_attempts_created_at ON search_attempts (created_at);
`

const columns = `id, query, strategy, endpoint, user_agent, category, status_code, signal, detection_src, result_count, duration_ms, created_at, error`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, a *storage.Attempt) error {
	query := `INSERT INTO search_attempts (` + columns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := b.pool.Exec(ctx, query,
		a.ID,
		a.Query,
		a.Strategy,
		a.Endpoint,
		a.UserAgent,
		a.Category,
		a.StatusCode,
		a.Signal,
		a.DetectionSrc,
		a.ResultCount,
		a.Duration.Milliseconds(),
		a.CreatedAt,
		a.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: save attempt %s: %w", a.ID, err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Attempt, error) {
	query := `SELECT ` + columns + ` FROM search_attempts WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, paramCount)
		args = append(args, filter.Query)
		paramCount++
	}
	if filter.Strategy != "" {
		query += fmt.Sprintf(` AND strategy = $%d`, paramCount)
		args = append(args, filter.Strategy)
		paramCount++
	}
	if filter.Blocked != nil {
		if *filter.Blocked {
			query += ` AND signal = 'blocked'`
		} else {
			query += ` AND signal <> 'blocked'`
		}
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*storage.Attempt
	for rows.Next() {
		var a storage.Attempt
		var durationMs int64
		var detectionSrc, errText *string

		err := rows.Scan(
			&a.ID, &a.Query, &a.Strategy, &a.Endpoint, &a.UserAgent, &a.Category,
			&a.StatusCode, &a.Signal, &detectionSrc, &a.ResultCount, &durationMs,
			&a.CreatedAt, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}

		a.Duration = time.Duration(durationMs) * time.Millisecond
		if detectionSrc != nil {
			a.DetectionSrc = *detectionSrc
		}
		if errText != nil {
			a.Error = *errText
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate attempts: %w", err)
	}

	return attempts, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

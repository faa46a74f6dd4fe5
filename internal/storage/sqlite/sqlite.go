package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/sift/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
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
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS search_attempts_created_at ON search_attempts (created_at);
`

const columns = `id, query, strategy, endpoint, user_agent, category, status_code, signal, detection_src, result_count, duration_ms, created_at, error`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// modernc's driver serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, a *storage.Attempt) error {
	query := `INSERT INTO search_attempts (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := b.db.ExecContext(ctx, query,
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
		a.CreatedAt.UTC(),
		a.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save attempt %s: %w", a.ID, err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Attempt, error) {
	query := `SELECT ` + columns + ` FROM search_attempts WHERE 1=1`
	args := []any{}

	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	if filter.Strategy != "" {
		query += ` AND strategy = ?`
		args = append(args, filter.Strategy)
	}
	if filter.Blocked != nil {
		if *filter.Blocked {
			query += ` AND signal = 'blocked'`
		} else {
			query += ` AND signal <> 'blocked'`
		}
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*storage.Attempt
	for rows.Next() {
		var a storage.Attempt
		var durationMs int64
		var detectionSrc, errText sql.NullString

		err := rows.Scan(
			&a.ID, &a.Query, &a.Strategy, &a.Endpoint, &a.UserAgent, &a.Category,
			&a.StatusCode, &a.Signal, &detectionSrc, &a.ResultCount, &durationMs,
			&a.CreatedAt, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan attempt: %w", err)
		}

		a.Duration = time.Duration(durationMs) * time.Millisecond
		a.DetectionSrc = detectionSrc.String
		a.Error = errText.String
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate attempts: %w", err)
	}

	return attempts, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

// Package postgres provides a PostgreSQL-backed [countstore.Store] for
// deployments that already run Postgres. It holds a single [pgxpool.Pool]
// and bootstraps its own schema on start.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/tallyvox/pkg/countstore"
)

// Compile-time interface assertion.
var _ countstore.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS keyword_counts (
    speaker_id TEXT   NOT NULL,
    keyword    TEXT   NOT NULL,
    count      BIGINT NOT NULL,
    PRIMARY KEY (speaker_id, keyword)
);

CREATE TABLE IF NOT EXISTS speaker_names (
    speaker_id TEXT PRIMARY KEY,
    name       TEXT NOT NULL
);
`

// Store is a PostgreSQL-backed count store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a connection pool to the database at dsn, pings it, and
// runs the idempotent schema bootstrap. Failure here aborts process startup.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("countstore postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("countstore postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("countstore postgres: init schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// IncrementOrInsert implements countstore.Store.
func (s *Store) IncrementOrInsert(ctx context.Context, speakerID, keyword string, delta int64) error {
	const q = `
		INSERT INTO keyword_counts (speaker_id, keyword, count)
		VALUES ($1, $2, $3)
		ON CONFLICT (speaker_id, keyword)
		DO UPDATE SET count = keyword_counts.count + excluded.count`

	if _, err := s.pool.Exec(ctx, q, speakerID, keyword, delta); err != nil {
		return fmt.Errorf("countstore postgres: increment %s/%s: %w", speakerID, keyword, err)
	}
	return nil
}

// UpsertName implements countstore.Store.
func (s *Store) UpsertName(ctx context.Context, speakerID, name string) error {
	const q = `
		INSERT INTO speaker_names (speaker_id, name)
		VALUES ($1, $2)
		ON CONFLICT (speaker_id)
		DO UPDATE SET name = excluded.name`

	if _, err := s.pool.Exec(ctx, q, speakerID, name); err != nil {
		return fmt.Errorf("countstore postgres: upsert name %s: %w", speakerID, err)
	}
	return nil
}

// ReadAll implements countstore.Store.
func (s *Store) ReadAll(ctx context.Context) ([]countstore.Record, error) {
	const q = `SELECT speaker_id, keyword, count FROM keyword_counts`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("countstore postgres: read all: %w", err)
	}
	defer rows.Close()

	var records []countstore.Record
	for rows.Next() {
		var r countstore.Record
		if err := rows.Scan(&r.SpeakerID, &r.Keyword, &r.Count); err != nil {
			return nil, fmt.Errorf("countstore postgres: scan row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("countstore postgres: read all: %w", err)
	}
	return records, nil
}

// ReadNames implements countstore.Store.
func (s *Store) ReadNames(ctx context.Context) (map[string]string, error) {
	const q = `SELECT speaker_id, name FROM speaker_names`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("countstore postgres: read names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("countstore postgres: scan name row: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("countstore postgres: read names: %w", err)
	}
	return names, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

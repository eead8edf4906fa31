// Package sqlite provides the default embedded [countstore.Store]
// implementation backed by modernc.org/sqlite (pure Go, no CGO).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/tallyvox/pkg/countstore"
)

// Compile-time interface assertion.
var _ countstore.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS keyword_counts (
    speaker_id TEXT    NOT NULL,
    keyword    TEXT    NOT NULL,
    count      INTEGER NOT NULL,
    PRIMARY KEY (speaker_id, keyword)
);
CREATE TABLE IF NOT EXISTS speaker_names (
    speaker_id TEXT PRIMARY KEY,
    name       TEXT NOT NULL
);
`

// Store is a SQLite-backed count store. All methods are safe for concurrent
// use; SQLite serialises writers internally.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory if needed, opens (or creates) the
// database at path with WAL journaling, and bootstraps the schema.
// Inability to open the database is a construction-time failure — the
// process should not start without durable storage.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("countstore sqlite: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("countstore sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("countstore sqlite: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("countstore sqlite: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// IncrementOrInsert implements countstore.Store.
func (s *Store) IncrementOrInsert(ctx context.Context, speakerID, keyword string, delta int64) error {
	const q = `
		INSERT INTO keyword_counts (speaker_id, keyword, count)
		VALUES (?, ?, ?)
		ON CONFLICT(speaker_id, keyword)
		DO UPDATE SET count = count + excluded.count`

	if _, err := s.db.ExecContext(ctx, q, speakerID, keyword, delta); err != nil {
		return fmt.Errorf("countstore sqlite: increment %s/%s: %w", speakerID, keyword, err)
	}
	return nil
}

// UpsertName implements countstore.Store.
func (s *Store) UpsertName(ctx context.Context, speakerID, name string) error {
	const q = `
		INSERT INTO speaker_names (speaker_id, name)
		VALUES (?, ?)
		ON CONFLICT(speaker_id)
		DO UPDATE SET name = excluded.name`

	if _, err := s.db.ExecContext(ctx, q, speakerID, name); err != nil {
		return fmt.Errorf("countstore sqlite: upsert name %s: %w", speakerID, err)
	}
	return nil
}

// ReadAll implements countstore.Store.
func (s *Store) ReadAll(ctx context.Context) ([]countstore.Record, error) {
	const q = `SELECT speaker_id, keyword, count FROM keyword_counts`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("countstore sqlite: read all: %w", err)
	}
	defer rows.Close()

	var records []countstore.Record
	for rows.Next() {
		var r countstore.Record
		if err := rows.Scan(&r.SpeakerID, &r.Keyword, &r.Count); err != nil {
			return nil, fmt.Errorf("countstore sqlite: scan row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("countstore sqlite: read all: %w", err)
	}
	return records, nil
}

// ReadNames implements countstore.Store.
func (s *Store) ReadNames(ctx context.Context) (map[string]string, error) {
	const q = `SELECT speaker_id, name FROM speaker_names`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("countstore sqlite: read names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("countstore sqlite: scan name row: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("countstore sqlite: read names: %w", err)
	}
	return names, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

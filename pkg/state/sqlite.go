package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps bookmarks in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}

	return s, nil
}

// initialize creates the database schema
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bookmarks (
		stream TEXT PRIMARY KEY,
		replication_key_value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, stream string) (Bookmark, error) {
	var b Bookmark
	err := s.db.QueryRowContext(ctx,
		`SELECT replication_key_value FROM bookmarks WHERE stream = ?`, stream,
	).Scan(&b.ReplicationKeyValue)

	if err == sql.ErrNoRows {
		StateLoads.WithLabelValues(BackendSQLite, "miss").Inc()
		return Bookmark{}, ErrNotFound
	}
	if err != nil {
		StateErrors.WithLabelValues(BackendSQLite, "load").Inc()
		return Bookmark{}, fmt.Errorf("failed to query bookmark: %w", err)
	}

	StateLoads.WithLabelValues(BackendSQLite, "hit").Inc()
	return b, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, stream string, bookmark Bookmark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (stream, replication_key_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(stream) DO UPDATE SET
			replication_key_value = excluded.replication_key_value,
			updated_at = excluded.updated_at
	`, stream, bookmark.ReplicationKeyValue, time.Now().UTC())

	if err != nil {
		StateErrors.WithLabelValues(BackendSQLite, "save").Inc()
		return fmt.Errorf("failed to save bookmark: %w", err)
	}

	StateSaves.WithLabelValues(BackendSQLite).Inc()
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

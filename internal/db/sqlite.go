package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements kv.Store on a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens the database at path, applying migrations.
// path can be a file path or ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := Migrate(db, "sqlite3", ""); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM kv_entries WHERE key IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows, out)
}

func (s *SQLiteStore) GetAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM kv_entries")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows, make(map[string][]byte))
}

func (s *SQLiteStore) Set(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for k, v := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv_entries (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET
				value = excluded.value,
				updated_at = CURRENT_TIMESTAMP
		`, k, string(v)); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", k, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE key IN ("+placeholders+")", args...)
	return err
}

func (s *SQLiteStore) BytesInUse(ctx context.Context) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(length(key) + length(value)), 0) FROM kv_entries",
	).Scan(&used)
	return used, err
}

// GetStatus returns entry counts for the status command
func (s *SQLiteStore) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{Connected: true}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv_entries").Scan(&status.TotalEntries); err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	return status, nil
}

// MigrationStatus prints the current migration status
func (s *SQLiteStore) MigrationStatus() error {
	return MigrationStatus(s.db, "sqlite3", "")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanEntries(rows *sql.Rows, out map[string][]byte) (map[string][]byte, error) {
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = []byte(value)
	}
	return out, rows.Err()
}

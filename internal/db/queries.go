package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Get returns the values stored under keys; missing keys are omitted
func (db *DB) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := db.Pool.Query(ctx,
		"SELECT key, value::text FROM kv_entries WHERE key = ANY($1)",
		keys,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows, out)
}

// GetAll returns every entry
func (db *DB) GetAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := db.Pool.Query(ctx, "SELECT key, value::text FROM kv_entries")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows, make(map[string][]byte))
}

// Set upserts all items in one transaction
func (db *DB) Set(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for k, v := range items {
		batch.Queue(`
			INSERT INTO kv_entries (key, value) VALUES ($1, $2::jsonb)
			ON CONFLICT (key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = NOW()
		`, k, string(v))
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert entries: %w", err)
	}

	return tx.Commit(ctx)
}

// Remove deletes entries by key
func (db *DB) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := db.Pool.Exec(ctx,
		"DELETE FROM kv_entries WHERE key = ANY($1)",
		keys,
	)
	return err
}

// BytesInUse approximates storage use as key plus serialized value length
func (db *DB) BytesInUse(ctx context.Context) (int64, error) {
	var used int64
	err := db.Pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(octet_length(key) + octet_length(value::text)), 0) FROM kv_entries",
	).Scan(&used)
	return used, err
}

func collectEntries(rows pgx.Rows, out map[string][]byte) (map[string][]byte, error) {
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = []byte(value)
	}
	return out, rows.Err()
}

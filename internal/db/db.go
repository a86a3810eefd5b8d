package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vonshlovens/threadnotes/internal/config"
)

// DB wraps the Postgres connection pool and implements kv.Store
type DB struct {
	Pool   *pgxpool.Pool
	config *config.DatabaseConfig
	Schema string
}

// New creates a new database connection pool
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database",
		"host", cfg.Host,
		"database", cfg.Database,
		"schema", cfg.Schema)

	return &DB{
		Pool:   pool,
		config: cfg,
		Schema: cfg.Schema,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	if db.Pool != nil {
		db.Pool.Close()
		slog.Info("database connection closed")
	}
	return nil
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// EnsureSchema creates the schema if it doesn't exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if db.Schema == "" {
		return nil
	}

	_, err := db.Pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", db.Schema))
	if err != nil {
		return fmt.Errorf("failed to create schema %s: %w", db.Schema, err)
	}

	slog.Info("schema ready", "schema", db.Schema)
	return nil
}

// RunMigrations executes all pending database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	stdDB, err := sql.Open("pgx", db.config.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open stdlib connection: %w", err)
	}
	defer stdDB.Close()

	if err := Migrate(stdDB, "postgres", db.versionTable()); err != nil {
		return err
	}

	slog.Info("migrations completed successfully", "schema", db.Schema)
	return nil
}

// MigrationStatus prints the current migration status
func (db *DB) MigrationStatus() error {
	stdDB, err := sql.Open("pgx", db.config.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open stdlib connection: %w", err)
	}
	defer stdDB.Close()

	return MigrationStatus(stdDB, "postgres", db.versionTable())
}

// versionTable keeps goose bookkeeping inside the configured schema
func (db *DB) versionTable() string {
	if db.Schema == "" {
		return ""
	}
	return db.Schema + ".goose_db_version"
}

// GetStatus returns entry counts and the last write time
func (db *DB) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{Connected: true}

	err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM kv_entries").Scan(&status.TotalEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}

	var lastWrite *time.Time
	if err := db.Pool.QueryRow(ctx, "SELECT MAX(updated_at) FROM kv_entries").Scan(&lastWrite); err != nil {
		slog.Warn("failed to get last write time", "error", err)
	}
	status.LastWrite = lastWrite

	return status, nil
}

// Status describes the state of a SQL-backed store
type Status struct {
	Connected    bool
	TotalEntries int
	LastWrite    *time.Time
}

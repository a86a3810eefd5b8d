package db

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// Migrate runs all pending migrations for the given goose dialect
// ("postgres" or "sqlite3") against an open connection.
func Migrate(stdDB *sql.DB, dialect, tableName string) error {
	dir := "migrations/postgres"
	if dialect == "sqlite3" {
		dir = "migrations/sqlite"
	}

	goose.SetBaseFS(migrationFiles)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if tableName != "" {
		goose.SetTableName(tableName)
	}

	if err := goose.Up(stdDB, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("migrations applied", "dialect", dialect)
	return nil
}

// MigrationStatus prints the migration status for the given dialect
func MigrationStatus(stdDB *sql.DB, dialect, tableName string) error {
	dir := "migrations/postgres"
	if dialect == "sqlite3" {
		dir = "migrations/sqlite"
	}

	goose.SetBaseFS(migrationFiles)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if tableName != "" {
		goose.SetTableName(tableName)
	}

	return goose.Status(stdDB, dir)
}

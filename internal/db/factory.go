package db

import (
	"context"
	"fmt"

	"github.com/vonshlovens/threadnotes/internal/config"
	"github.com/vonshlovens/threadnotes/internal/kv"
)

var (
	_ kv.Store = (*DB)(nil)
	_ kv.Store = (*SQLiteStore)(nil)
)

// Open returns the kv.Store selected by cfg.Storage.Backend
func Open(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return kv.NewMemoryStore(), nil
	case "file", "":
		return kv.NewFileStore(cfg.StoragePath())
	case "sqlite":
		return NewSQLiteStore(cfg.StoragePath())
	case "postgres":
		if cfg.Storage.Postgres == nil {
			return nil, fmt.Errorf("postgres backend selected without storage.postgres settings")
		}
		database, err := New(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx); err != nil {
			database.Close()
			return nil, err
		}
		return database, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Storage.Backend)
	}
}

// Migrator is implemented by SQL-backed stores
type Migrator interface {
	MigrationStatus() error
}

// StatusReporter is implemented by SQL-backed stores
type StatusReporter interface {
	GetStatus(ctx context.Context) (*Status, error)
}

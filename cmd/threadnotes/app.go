package main

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/vonshlovens/threadnotes/internal/config"
	"github.com/vonshlovens/threadnotes/internal/db"
	"github.com/vonshlovens/threadnotes/internal/downloads"
	"github.com/vonshlovens/threadnotes/internal/kv"
	"github.com/vonshlovens/threadnotes/internal/notes"
	tnsync "github.com/vonshlovens/threadnotes/internal/sync"
)

// app wires the configured backend, downloads folder and sync monitor into
// one notes.Store
type app struct {
	cfg        *config.Config
	kv         kv.Store
	downloader *downloads.FileDownloader
	store      *notes.Store
	state      *tnsync.StateTracker
	monitor    *tnsync.Monitor
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	state, err := tnsync.NewStateTracker(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create state tracker: %w", err)
	}

	a := &app{
		cfg:        cfg,
		kv:         store,
		downloader: downloads.NewFileDownloader(cfg.DownloadsDir),
		state:      state,
	}
	a.monitor = tnsync.NewMonitor(state, a.syncFolder())

	a.store = notes.New(store, a.downloader, notes.Options{
		DebounceDelay:  time.Duration(cfg.Sync.DebounceMs) * time.Millisecond,
		QuotaBytes:     cfg.Storage.QuotaBytes,
		AfterSyncWrite: a.monitor.RecordWrite,
	})

	slog.Debug("storage opened", "backend", cfg.Storage.Backend, "downloads", cfg.DownloadsDir)
	return a, nil
}

// syncFolder is the directory holding the sync file
func (a *app) syncFolder() string {
	return filepath.Join(a.cfg.DownloadsDir, filepath.FromSlash(path.Dir(notes.SyncFilePath)))
}

// syncFilePath is the absolute location of the sync file
func (a *app) syncFilePath() string {
	return filepath.Join(a.cfg.DownloadsDir, filepath.FromSlash(notes.SyncFilePath))
}

// close flushes a pending debounced backup before releasing storage
func (a *app) close() {
	a.store.Close()
	if err := a.state.Save(); err != nil {
		slog.Warn("failed to save sync state", "error", err)
	}
	if err := a.kv.Close(); err != nil {
		slog.Warn("failed to close storage", "error", err)
	}
}

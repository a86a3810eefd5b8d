// Package sync keeps track of the sync file on disk: what this process last
// wrote there and whether something else has changed it since.
//
// Changes made outside the process are reported, never merged. The next
// sync write overwrites them; restoring from them is an explicit import.
package sync

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/vonshlovens/threadnotes/internal/watcher"
)

// Monitor compares sync file events against the writes recorded through RecordWrite
type Monitor struct {
	state *StateTracker
	root  string
	now   func() time.Time
}

// NewMonitor creates a monitor for files under root (the watched sync folder)
func NewMonitor(state *StateTracker, root string) *Monitor {
	return &Monitor{
		state: state,
		root:  root,
		now:   time.Now,
	}
}

// RecordWrite remembers the hash of content this process wrote to path.
// Its signature matches notes.Options.AfterSyncWrite.
func (m *Monitor) RecordWrite(path string, data []byte) {
	hash := HashContent(data)
	m.state.RecordWrite(path, hash, int64(len(data)), m.now())

	if err := m.state.Save(); err != nil {
		slog.Warn("failed to save sync state", "error", err)
	}

	slog.Debug("sync write recorded", "path", path, "hash", ShortHash(hash))
}

// HandleEvent inspects a watcher event and reports whether it is an
// external change to a sync file.
func (m *Monitor) HandleEvent(event watcher.FileEvent) (bool, error) {
	absPath := filepath.Join(m.root, filepath.FromSlash(event.Path))

	switch event.EventType {
	case watcher.EventDelete, watcher.EventRename:
		slog.Warn("sync file removed; it will be recreated on the next sync", "path", absPath)
		return false, nil
	case watcher.EventCreate, watcher.EventModify:
		return m.Check(absPath)
	default:
		return false, nil
	}
}

// Check hashes the file at absPath and flags it if the content is not what we last wrote
func (m *Monitor) Check(absPath string) (bool, error) {
	hash, err := HashFile(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	if m.state.IsOwnWrite(absPath, hash) {
		slog.Debug("sync file matches last write", "path", absPath)
		return false, nil
	}

	if prev := m.state.GetFileState(absPath); prev != nil && prev.ExternalHash == hash && prev.HasExternalChange() {
		// Already reported
		return true, nil
	}

	m.state.RecordExternalChange(absPath, hash, m.now())
	if err := m.state.Save(); err != nil {
		slog.Warn("failed to save sync state", "error", err)
	}

	slog.Warn("sync file changed outside threadnotes; the next sync will overwrite it",
		"path", absPath,
		"hash", ShortHash(hash),
		"hint", "run `threadnotes import "+absPath+" --merge` to keep its notes")
	return true, nil
}

// Run checks every tracked file once, then handles events until ctx is done
// or the channel closes.
func (m *Monitor) Run(ctx context.Context, events <-chan watcher.FileEvent) {
	for _, path := range m.state.GetAllPaths() {
		if _, err := m.Check(path); err != nil {
			slog.Warn("failed to check sync file", "path", path, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			slog.Debug("sync folder event", "path", event.Path, "type", event.EventType.String())
			if _, err := m.HandleEvent(event); err != nil {
				slog.Error("failed to inspect sync file", "path", event.Path, "error", err)
			}
		}
	}
}

// Status returns the tracked state for path, or nil if we never wrote it
func (m *Monitor) Status(path string) *FileState {
	return m.state.GetFileState(path)
}

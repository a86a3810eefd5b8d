package sync

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateFileName = "sync-state.json"

// FileState tracks one sync file: what we last wrote and what we last saw
// change underneath us.
type FileState struct {
	Hash             string     `json:"hash"`
	LastWritten      time.Time  `json:"last_written"`
	SizeBytes        int64      `json:"size_bytes"`
	Writes           int        `json:"writes"`
	ExternalHash     string     `json:"external_hash,omitempty"`
	ExternalChangeAt *time.Time `json:"external_change_at,omitempty"`
}

// HasExternalChange reports whether the file was modified after our last write
func (fs *FileState) HasExternalChange() bool {
	return fs.ExternalChangeAt != nil && fs.ExternalChangeAt.After(fs.LastWritten)
}

// SyncState is the persisted state for all tracked sync files
type SyncState struct {
	Files map[string]*FileState `json:"files"`
}

// StateTracker manages sync file state in <dataDir>/sync-state.json
type StateTracker struct {
	state    *SyncState
	filePath string
	mu       sync.RWMutex
	dirty    bool
}

// NewStateTracker loads existing state from dataDir or starts empty
func NewStateTracker(dataDir string) (*StateTracker, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	st := &StateTracker{
		filePath: filepath.Join(dataDir, stateFileName),
		state:    &SyncState{Files: make(map[string]*FileState)},
	}

	if err := st.load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("ignoring unreadable sync state", "path", st.filePath, "error", err)
	}

	return st, nil
}

// load reads state from disk
func (st *StateTracker) load() error {
	data, err := os.ReadFile(st.filePath)
	if err != nil {
		return err
	}

	state := &SyncState{}
	if err := json.Unmarshal(data, state); err != nil {
		return err
	}

	if state.Files == nil {
		state.Files = make(map[string]*FileState)
	}

	st.state = state
	return nil
}

// Save persists state to disk if anything changed
func (st *StateTracker) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.dirty {
		return nil
	}

	data, err := json.MarshalIndent(st.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := st.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, st.filePath); err != nil {
		return err
	}

	st.dirty = false
	return nil
}

// Path returns the state file location
func (st *StateTracker) Path() string {
	return st.filePath
}

// GetFileState returns a copy of the state for path, or nil
func (st *StateTracker) GetFileState(path string) *FileState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	fs, ok := st.state.Files[path]
	if !ok {
		return nil
	}
	cp := *fs
	return &cp
}

// RecordWrite notes that we wrote content with the given hash to path
func (st *StateTracker) RecordWrite(path, hash string, size int64, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	fs, ok := st.state.Files[path]
	if !ok {
		fs = &FileState{}
		st.state.Files[path] = fs
	}
	fs.Hash = hash
	fs.SizeBytes = size
	fs.LastWritten = at
	fs.Writes++
	st.dirty = true
}

// RecordExternalChange notes that path now holds content we did not write
func (st *StateTracker) RecordExternalChange(path, hash string, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	fs, ok := st.state.Files[path]
	if !ok {
		fs = &FileState{}
		st.state.Files[path] = fs
	}
	fs.ExternalHash = hash
	fs.ExternalChangeAt = &at
	st.dirty = true
}

// IsOwnWrite reports whether hash matches the last content we wrote to path
func (st *StateTracker) IsOwnWrite(path, hash string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	fs, ok := st.state.Files[path]
	return ok && fs.Hash == hash
}

// RemoveFileState forgets path
func (st *StateTracker) RemoveFileState(path string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.state.Files, path)
	st.dirty = true
}

// GetAllPaths returns all tracked file paths
func (st *StateTracker) GetAllPaths() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	paths := make([]string, 0, len(st.state.Files))
	for path := range st.state.Files {
		paths = append(paths, path)
	}
	return paths
}

// FileCount returns the number of tracked files
func (st *StateTracker) FileCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.state.Files)
}

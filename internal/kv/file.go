package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// fileState is the on-disk shape of a FileStore
type fileState struct {
	Entries map[string]json.RawMessage `json:"entries"`
}

// FileStore persists all entries in a single JSON file. The file is loaded
// once at open and rewritten after every mutation.
type FileStore struct {
	entries  map[string][]byte
	filePath string
	mu       sync.RWMutex
}

// NewFileStore opens (or creates) a file-backed store at path
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	fs := &FileStore{
		entries:  make(map[string][]byte),
		filePath: path,
	}

	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load store %s: %w", path, err)
	}

	return fs, nil
}

// load reads entries from disk
func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		return err
	}

	state := &fileState{}
	if err := json.Unmarshal(data, state); err != nil {
		return err
	}

	for k, v := range state.Entries {
		fs.entries[k] = []byte(v)
	}
	return nil
}

// save writes entries to disk; caller holds the write lock
func (fs *FileStore) save(entries map[string][]byte) error {
	state := fileState{Entries: make(map[string]json.RawMessage, len(entries))}
	for k, v := range entries {
		state.Entries[k] = json.RawMessage(v)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, fs.filePath)
}

func (fs *FileStore) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := fs.entries[k]; ok {
			out[k] = clone(v)
		}
	}
	return out, nil
}

func (fs *FileStore) GetAll(_ context.Context) (map[string][]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make(map[string][]byte, len(fs.entries))
	for k, v := range fs.entries {
		out[k] = clone(v)
	}
	return out, nil
}

func (fs *FileStore) Set(_ context.Context, items map[string][]byte) error {
	for k, v := range items {
		if !json.Valid(v) {
			return fmt.Errorf("value for %q is not valid JSON", k)
		}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Mutations apply to a copy and only become visible once on disk
	next := maps.Clone(fs.entries)
	for k, v := range items {
		next[k] = clone(v)
	}
	if err := fs.save(next); err != nil {
		return err
	}
	fs.entries = next
	return nil
}

func (fs *FileStore) Remove(_ context.Context, keys ...string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	next := maps.Clone(fs.entries)
	for _, k := range keys {
		delete(next, k)
	}
	if len(next) == len(fs.entries) {
		return nil
	}
	if err := fs.save(next); err != nil {
		return err
	}
	fs.entries = next
	return nil
}

func (fs *FileStore) BytesInUse(_ context.Context) (int64, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return sizeOf(fs.entries), nil
}

// Path returns the backing file location
func (fs *FileStore) Path() string {
	return fs.filePath
}

func (fs *FileStore) Close() error { return nil }

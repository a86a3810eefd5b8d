// Package notes owns the persisted note set: note CRUD, the metadata index,
// settings, and the export/import/sync workflow built on top of them.
//
// The store makes no cross-call atomicity promise. A note write and its
// metadata update are two sequential persistence calls; a crash between
// them leaves metadata behind until the next write for that key. Concurrent
// saves for the same key resolve last-write-wins per underlying Set.
package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vonshlovens/threadnotes/internal/downloads"
	"github.com/vonshlovens/threadnotes/internal/kv"
	"github.com/vonshlovens/threadnotes/internal/watcher"
)

const backupDebounceKey = "backup"

// Options configure a Store. Zero values select the defaults.
type Options struct {
	Clock         Clock
	DeviceIDs     IDGenerator
	DebounceDelay time.Duration // default 10s
	QuotaBytes    int64         // default 5 MiB
	// FrequencyUnit is the length of one auto-sync frequency unit; default one minute.
	FrequencyUnit time.Duration
	// AfterSyncWrite is called with the written path and bytes after every sync file write.
	AfterSyncWrite func(path string, data []byte)
}

// Store is the single source of truth for notes, metadata and sync settings.
// Construct one per process and share it.
type Store struct {
	kv         kv.Store
	downloader downloads.Downloader
	clock      Clock
	ids        IDGenerator
	quota      int64
	unit       time.Duration
	afterSync  func(path string, data []byte)
	debouncer  *watcher.Debouncer
	validate   *validator.Validate

	mu       sync.Mutex
	syncStop chan struct{}
	syncDone chan struct{}
}

// New creates a Store over the given persistence and downloads capabilities
func New(store kv.Store, downloader downloads.Downloader, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.DeviceIDs == nil {
		opts.DeviceIDs = DeviceIDGenerator{Clock: opts.Clock}
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = 10 * time.Second
	}
	if opts.QuotaBytes <= 0 {
		opts.QuotaBytes = 5 * 1024 * 1024
	}
	if opts.FrequencyUnit <= 0 {
		opts.FrequencyUnit = time.Minute
	}

	return &Store{
		kv:         store,
		downloader: downloader,
		clock:      opts.Clock,
		ids:        opts.DeviceIDs,
		quota:      opts.QuotaBytes,
		unit:       opts.FrequencyUnit,
		afterSync:  opts.AfterSyncWrite,
		debouncer:  watcher.NewDebouncer(opts.DebounceDelay),
		validate:   validator.New(),
	}
}

// SaveRequest carries the fields of a saveNote message
type SaveRequest struct {
	Key              string   `validate:"required,ne=metadata"`
	Content          string
	Platform         Platform `validate:"omitempty,oneof=gmail outlook"`
	Account          string
	OriginalThreadID string
	Subject          string
	AccountEmail     string
	AccountIndex     string
}

// SaveNote creates or replaces the note under req.Key and updates metadata.
// It does not schedule a backup; callers trigger debounced or immediate
// backups explicitly.
func (s *Store) SaveNote(ctx context.Context, req SaveRequest) (*Note, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid note: %v", err)}
	}
	if req.Platform == "" {
		req.Platform = PlatformGmail
	}

	meta, err := s.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	created := now
	lastModified := now
	if prev, ok := meta.Notes[req.Key]; ok {
		if prev.Created != 0 {
			created = prev.Created
		}
		if lastModified <= prev.LastModified {
			lastModified = prev.LastModified + 1
		}
	}

	note := &Note{
		Content:          req.Content,
		Timestamp:        created,
		Platform:         req.Platform,
		ThreadID:         req.Key,
		Account:          req.Account,
		AccountEmail:     req.AccountEmail,
		AccountIndex:     req.AccountIndex,
		OriginalThreadID: req.OriginalThreadID,
		Subject:          req.Subject,
		LastModified:     lastModified,
	}

	if err := s.setJSON(ctx, storageKey(req.Key), note); err != nil {
		return nil, ioErr("save note", err)
	}

	slog.Debug("note saved", "key", req.Key, "platform", note.Platform, "bytes", len(note.Content))

	if err := s.updateMetadata(ctx, req.Key, note); err != nil {
		slog.Error("failed to update metadata", "key", req.Key, "error", err)
	}

	return note, nil
}

// GetNote returns the note for key, or nil if none exists
func (s *Store) GetNote(ctx context.Context, key string) (*Note, error) {
	sk, ok := noteStorageKey(key)
	if !ok {
		return nil, nil
	}

	var note Note
	found, err := s.getJSON(ctx, sk, &note)
	if err != nil {
		return nil, ioErr("get note", err)
	}
	if !found {
		return nil, nil
	}
	return &note, nil
}

// DeleteNote removes the note and its metadata entry. Deleting an absent
// note reports existed=false and changes nothing. A successful delete runs
// one immediate backup; a failed backup is logged, not returned.
func (s *Store) DeleteNote(ctx context.Context, key string) (bool, error) {
	sk, ok := noteStorageKey(key)
	if !ok {
		slog.Debug("not a note key, nothing to delete", "key", key)
		return false, nil
	}

	existing, err := s.kv.Get(ctx, sk)
	if err != nil {
		return false, ioErr("delete note", err)
	}
	if _, ok := existing[sk]; !ok {
		slog.Debug("note not found for delete", "key", key)
		return false, nil
	}

	if err := s.kv.Remove(ctx, sk); err != nil {
		return false, ioErr("delete note", err)
	}

	if err := s.removeFromMetadata(ctx, key); err != nil {
		slog.Error("failed to remove metadata entry", "key", key, "error", err)
	}

	slog.Info("note deleted", "key", key)

	if _, err := s.ImmediateBackup(ctx); err != nil {
		slog.Error("immediate backup after delete failed", "key", key, "error", err)
	}

	return true, nil
}

// GetAllNotes returns every stored note keyed by note key. When storage
// holds no notes it runs one recovery pass and scans again.
func (s *Store) GetAllNotes(ctx context.Context) (map[string]*Note, error) {
	notes, err := s.scanNotes(ctx)
	if err != nil {
		return nil, err
	}

	if len(notes) == 0 {
		slog.Info("no notes in storage, attempting data recovery")
		if _, err := s.AttemptDataRecovery(ctx); err != nil {
			slog.Warn("data recovery attempt failed", "error", err)
		}

		notes, err = s.scanNotes(ctx)
		if err != nil {
			return nil, err
		}
	}

	return notes, nil
}

// scanNotes enumerates notes without the recovery fallback
func (s *Store) scanNotes(ctx context.Context) (map[string]*Note, error) {
	all, err := s.kv.GetAll(ctx)
	if err != nil {
		return nil, ioErr("list notes", err)
	}

	notes := make(map[string]*Note)
	for k, raw := range all {
		key, ok := noteKeyFromStorage(k)
		if !ok {
			continue
		}
		var note Note
		if err := json.Unmarshal(raw, &note); err != nil {
			slog.Warn("skipping unreadable note", "key", key, "error", err)
			continue
		}
		notes[key] = &note
	}
	return notes, nil
}

// GetMetadata returns the metadata singleton, or fresh defaults if none is stored
func (s *Store) GetMetadata(ctx context.Context) (*Metadata, error) {
	var meta Metadata
	found, err := s.getJSON(ctx, metadataKey, &meta)
	if err != nil {
		return nil, ioErr("get metadata", err)
	}
	if !found {
		now := s.now()
		return &Metadata{
			Version:     metadataVersion,
			Notes:       make(map[string]MetadataEntry),
			Created:     now,
			LastUpdated: now,
		}, nil
	}
	if meta.Notes == nil {
		meta.Notes = make(map[string]MetadataEntry)
	}
	return &meta, nil
}

func (s *Store) updateMetadata(ctx context.Context, key string, note *Note) error {
	meta, err := s.GetMetadata(ctx)
	if err != nil {
		return err
	}

	created := note.Timestamp
	if prev, ok := meta.Notes[key]; ok && prev.Created != 0 {
		created = prev.Created
	}
	meta.Notes[key] = metadataEntryFor(note, created)
	meta.TotalNotes = len(meta.Notes)
	meta.LastUpdated = s.now()

	return s.saveMetadata(ctx, meta)
}

func (s *Store) removeFromMetadata(ctx context.Context, key string) error {
	meta, err := s.GetMetadata(ctx)
	if err != nil {
		return err
	}

	delete(meta.Notes, key)
	meta.TotalNotes = len(meta.Notes)
	meta.LastUpdated = s.now()

	return s.saveMetadata(ctx, meta)
}

func (s *Store) saveMetadata(ctx context.Context, meta *Metadata) error {
	if err := s.setJSON(ctx, metadataKey, meta); err != nil {
		return ioErr("save metadata", err)
	}
	return nil
}

func metadataEntryFor(note *Note, created int64) MetadataEntry {
	return MetadataEntry{
		Platform:         note.Platform,
		Account:          note.Account,
		AccountEmail:     note.AccountEmail,
		AccountIndex:     note.AccountIndex,
		OriginalThreadID: note.OriginalThreadID,
		LastModified:     note.LastModified,
		Created:          created,
	}
}

// GetStorageUsage reports bytes in use against the quota
func (s *Store) GetStorageUsage(ctx context.Context) (*StorageUsage, error) {
	used, err := s.kv.BytesInUse(ctx)
	if err != nil {
		return nil, ioErr("storage usage", err)
	}
	return &StorageUsage{
		Used:       used,
		Quota:      s.quota,
		Percentage: float64(used) / float64(s.quota) * 100,
		Available:  s.quota - used,
	}, nil
}

// Close stops auto-sync, runs any pending debounced backup, and stops the debouncer
func (s *Store) Close() {
	s.stopAutoSync()
	s.debouncer.Flush()
	s.debouncer.Stop()
}

func (s *Store) now() int64 {
	return s.clock.Now().UnixMilli()
}

// getJSON decodes the value at key into dst, reporting whether it existed
func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	res, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	raw, ok := res[key]
	if !ok || strings.TrimSpace(string(raw)) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, map[string][]byte{key: data})
}

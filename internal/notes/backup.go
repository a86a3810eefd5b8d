package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vonshlovens/threadnotes/internal/downloads"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// BuildBundle snapshots every note plus metadata into the backup format
func (s *Store) BuildBundle(ctx context.Context) (*Bundle, error) {
	notes, err := s.GetAllNotes(ctx)
	if err != nil {
		return nil, err
	}

	meta, err := s.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}

	deviceID, err := s.GetDeviceID(ctx)
	if err != nil {
		slog.Warn("failed to get device id", "error", err)
		deviceID = "unknown_device"
	}

	return &Bundle{
		Version:     bundleVersion,
		CreatedDate: s.clock.Now().UTC().Format(isoMillis),
		DeviceID:    deviceID,
		Metadata:    meta,
		Notes:       notes,
		TotalNotes:  len(notes),
	}, nil
}

func encodeBundle(b *Bundle) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return data, nil
}

// ExportFilename returns the timestamped export name for t, in UTC
func ExportFilename(t time.Time) string {
	t = t.UTC()
	return exportFilenamePrefix + t.Format("2006-01-02") + "-" + t.Format("15-04-05") + ".json"
}

// ExportNotes writes a timestamped bundle, letting the user pick where it goes
func (s *Store) ExportNotes(ctx context.Context) (*ExportResult, error) {
	bundle, err := s.BuildBundle(ctx)
	if err != nil {
		return nil, err
	}

	data, err := encodeBundle(bundle)
	if err != nil {
		return nil, err
	}

	filename := ExportFilename(s.clock.Now())
	res, err := s.downloader.Download(ctx, downloads.Request{
		Filename:       filename,
		Data:           data,
		SaveAs:         true,
		ConflictAction: downloads.ConflictUniquify,
	})
	if err != nil {
		return nil, ioErr("export notes", err)
	}

	slog.Info("notes exported", "download_id", res.ID, "path", res.Path, "notes", bundle.TotalNotes)

	return &ExportResult{
		DownloadID: res.ID,
		Filename:   filename,
		Path:       res.Path,
		NotesCount: bundle.TotalNotes,
	}, nil
}

// ImportNotes restores notes from a bundle. Without Merge, an existing note
// is kept (skipped) unless Overwrite is set; with Merge every valid entry is
// written. Entries missing content or threadId are counted as errors.
func (s *Store) ImportNotes(ctx context.Context, content string, opts ImportOptions) (*ImportResult, error) {
	if !json.Valid([]byte(content)) {
		return nil, &ParseError{Msg: "Invalid backup file format - not valid JSON"}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &top); err != nil {
		return nil, &ValidationError{Msg: "Invalid backup file - notes data missing or corrupted"}
	}

	var entries map[string]json.RawMessage
	if raw, ok := top["notes"]; !ok || json.Unmarshal(raw, &entries) != nil || entries == nil {
		return nil, &ValidationError{Msg: "Invalid backup file - notes data missing or corrupted"}
	}

	version, ok := truthyString(top["version"])
	if !ok {
		return nil, &ValidationError{Msg: "Invalid backup file - version information missing"}
	}

	var createdDate string
	if raw, ok := top["createdDate"]; ok {
		_ = json.Unmarshal(raw, &createdDate)
	}

	result := &ImportResult{TotalInBackup: len(entries)}
	imported := make(map[string]*Note)
	done := 0

	for key, raw := range entries {
		done++
		switch outcome := s.importEntry(ctx, key, raw, createdDate, opts); outcome.kind {
		case entryImported:
			result.Imported++
			imported[key] = outcome.note
		case entrySkipped:
			result.Skipped++
		case entryError:
			result.Errors++
		}
		if opts.Progress != nil {
			opts.Progress(done, len(entries))
		}
	}

	if result.Imported > 0 {
		if err := s.recordImport(ctx, imported, result, version); err != nil {
			slog.Error("failed to update metadata after import", "error", err)
		}
	}

	slog.Info("import completed",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"total", result.TotalInBackup)

	return result, nil
}

type entryKind int

const (
	entryImported entryKind = iota
	entrySkipped
	entryError
)

type entryOutcome struct {
	kind entryKind
	note *Note
}

// importEntry restores one bundle entry as-is, stamping importedAt and
// originalBackupDate. Unknown fields in the entry are preserved.
func (s *Store) importEntry(ctx context.Context, key string, raw json.RawMessage, createdDate string, opts ImportOptions) entryOutcome {
	sk, ok := noteStorageKey(key)
	if !ok {
		slog.Warn("skipping note with reserved key", "key", key)
		return entryOutcome{kind: entryError}
	}

	if !opts.Merge {
		existing, err := s.kv.Get(ctx, sk)
		if err != nil {
			slog.Error("failed to check existing note", "key", key, "error", err)
			return entryOutcome{kind: entryError}
		}
		if _, ok := existing[sk]; ok && !opts.Overwrite {
			return entryOutcome{kind: entrySkipped}
		}
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		slog.Warn("skipping malformed note", "key", key)
		return entryOutcome{kind: entryError}
	}
	_, hasContent := truthyString(fields["content"])
	_, hasThread := truthyString(fields["threadId"])
	if !hasContent || !hasThread {
		slog.Warn("skipping invalid note data", "key", key)
		return entryOutcome{kind: entryError}
	}

	var note Note
	if err := json.Unmarshal(raw, &note); err != nil {
		slog.Warn("skipping malformed note", "key", key, "error", err)
		return entryOutcome{kind: entryError}
	}

	now := s.now()
	note.ImportedAt = now
	note.OriginalBackupDate = createdDate
	fields["importedAt"], _ = json.Marshal(now)
	fields["originalBackupDate"], _ = json.Marshal(createdDate)

	data, err := json.Marshal(fields)
	if err != nil {
		return entryOutcome{kind: entryError}
	}
	if err := s.kv.Set(ctx, map[string][]byte{sk: data}); err != nil {
		slog.Error("failed to import note", "key", key, "error", err)
		return entryOutcome{kind: entryError}
	}

	return entryOutcome{kind: entryImported, note: &note}
}

// recordImport indexes imported notes, recounts from a full scan, and
// attaches the lastImport audit record.
func (s *Store) recordImport(ctx context.Context, imported map[string]*Note, result *ImportResult, version string) error {
	meta, err := s.GetMetadata(ctx)
	if err != nil {
		return err
	}

	for key, note := range imported {
		created := note.Timestamp
		if prev, ok := meta.Notes[key]; ok && prev.Created != 0 {
			created = prev.Created
		}
		if created == 0 {
			created = note.ImportedAt
		}
		meta.Notes[key] = metadataEntryFor(note, created)
	}

	all, err := s.scanNotes(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	meta.TotalNotes = len(all)
	meta.LastUpdated = now
	meta.LastImport = &ImportRecord{
		Date:          now,
		ImportedNotes: result.Imported,
		SkippedNotes:  result.Skipped,
		Errors:        result.Errors,
		SourceVersion: version,
	}

	return s.saveMetadata(ctx, meta)
}

// truthyString renders a JSON scalar as a string, rejecting absent,
// null, false, zero and empty values.
func truthyString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, val != ""
	case float64:
		if val == 0 {
			return "", false
		}
		return fmt.Sprint(val), true
	case bool:
		return "true", val
	case nil:
		return "", false
	default:
		return string(raw), true
	}
}

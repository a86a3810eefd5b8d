package notes

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/threadnotes/internal/downloads"
)

func TestExportFilename(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 5, 0, time.UTC)
	assert.Equal(t, "email-notes-backup-2024-01-15-10-30-05.json", ExportFilename(ts))

	// Always rendered in UTC
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "email-notes-backup-2024-01-15-10-30-05.json", ExportFilename(ts.In(est)))
}

func TestExportNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.save(t, "a", "first")
	env.save(t, "b", "second")

	res, err := env.store.ExportNotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "email-notes-backup-2024-01-15-10-30-00.json", res.Filename)
	assert.Equal(t, 2, res.NotesCount)
	assert.Equal(t, 1, res.DownloadID)

	req, ok := env.downloader.Last(res.Filename)
	require.True(t, ok)
	assert.True(t, req.SaveAs, "export prompts for a location")
	assert.Equal(t, downloads.ConflictUniquify, req.ConflictAction)

	var bundle Bundle
	require.NoError(t, json.Unmarshal(req.Data, &bundle))
	assert.Equal(t, "2.0.0", bundle.Version)
	assert.Equal(t, "2024-01-15T10:30:00.000Z", bundle.CreatedDate)
	assert.Equal(t, "device_test1_0", bundle.DeviceID)
	assert.Equal(t, 2, bundle.TotalNotes)
	require.Len(t, bundle.Notes, 2)
	assert.Equal(t, "first", bundle.Notes["a"].Content)
	require.NotNil(t, bundle.Metadata)
	assert.Equal(t, 2, bundle.Metadata.TotalNotes)
}

func TestExportNotes_DownloadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.save(t, "a", "first")
	env.downloader.Err = errors.New("permission denied")

	_, err := env.store.ExportNotes(context.Background())
	require.Error(t, err)
	assert.True(t, IsIOError(err))
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestEnv(t)
	ctx := context.Background()

	_, err := src.store.SaveNote(ctx, SaveRequest{
		Key:              "gmail_account_0_abc123",
		Content:          "call back Tuesday",
		Platform:         PlatformGmail,
		Account:          "gmail_account_0",
		OriginalThreadID: "abc123",
	})
	require.NoError(t, err)
	src.clock.Advance(time.Minute)
	_, err = src.store.SaveNote(ctx, SaveRequest{Key: "outlook_x", Content: "ping legal", Platform: PlatformOutlook})
	require.NoError(t, err)

	res, err := src.store.ExportNotes(ctx)
	require.NoError(t, err)
	req, ok := src.downloader.Last(res.Filename)
	require.True(t, ok)

	dst := newTestEnv(t)
	result, err := dst.store.ImportNotes(ctx, string(req.Data), ImportOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Imported: 2, Skipped: 0, Errors: 0, TotalInBackup: 2}, result)

	want, err := src.store.GetAllNotes(ctx)
	require.NoError(t, err)
	got, err := dst.store.GetAllNotes(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(want))

	for key, w := range want {
		g := got[key]
		require.NotNil(t, g, key)
		assert.Equal(t, w.Content, g.Content)
		assert.Equal(t, w.Platform, g.Platform)
		assert.Equal(t, w.ThreadID, g.ThreadID)
		assert.Equal(t, w.Account, g.Account)
		assert.Equal(t, w.OriginalThreadID, g.OriginalThreadID)
		assert.Equal(t, w.Timestamp, g.Timestamp)
		assert.Equal(t, w.LastModified, g.LastModified)
		assert.Equal(t, "2024-01-15T10:31:00.000Z", g.OriginalBackupDate)
		assert.Equal(t, dst.clock.Now().UnixMilli(), g.ImportedAt)
	}
}

func TestImportNotes_SingleValidNote(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.store.ImportNotes(context.Background(),
		`{"version":"2.0.0","notes":{"k1":{"content":"hi","threadId":"k1"}}}`, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Imported: 1, Skipped: 0, Errors: 0, TotalInBackup: 1}, result)

	note, err := env.store.GetNote(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "hi", note.Content)
}

func TestImportNotes_InvalidEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"missing content", `{"threadId":"k1"}`},
		{"empty content", `{"content":"","threadId":"k1"}`},
		{"missing threadId", `{"content":"hi"}`},
		{"null entry", `null`},
		{"not an object", `"hi"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			result, err := env.store.ImportNotes(context.Background(),
				`{"version":"2.0.0","notes":{"k1":`+tt.entry+`}}`, ImportOptions{})
			require.NoError(t, err)
			assert.Equal(t, 0, result.Imported)
			assert.Equal(t, 1, result.Errors)
			assert.Equal(t, 1, result.TotalInBackup)

			note, err := env.store.GetNote(context.Background(), "k1")
			require.NoError(t, err)
			assert.Nil(t, note)
		})
	}
}

func TestImportNotes_FileErrors(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		parseErr   bool
		wantErrMsg string
	}{
		{"not json", `{not json`, true, "Invalid backup file format - not valid JSON"},
		{"empty input", ``, true, "Invalid backup file format - not valid JSON"},
		{"top-level array", `[]`, false, "Invalid backup file - notes data missing or corrupted"},
		{"notes missing", `{"version":"2.0.0"}`, false, "Invalid backup file - notes data missing or corrupted"},
		{"notes null", `{"version":"2.0.0","notes":null}`, false, "Invalid backup file - notes data missing or corrupted"},
		{"notes not object", `{"version":"2.0.0","notes":[1]}`, false, "Invalid backup file - notes data missing or corrupted"},
		{"version missing", `{"notes":{}}`, false, "Invalid backup file - version information missing"},
		{"version empty", `{"version":"","notes":{}}`, false, "Invalid backup file - version information missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.store.ImportNotes(context.Background(), tt.content, ImportOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.wantErrMsg, err.Error())
			if tt.parseErr {
				assert.True(t, IsParseError(err))
			} else {
				assert.True(t, IsValidationError(err))
			}
		})
	}
}

func TestImportNotes_Collisions(t *testing.T) {
	const bundle = `{"version":"2.0.0","notes":{"k1":{"content":"hi","threadId":"k1"}}}`

	tests := []struct {
		name        string
		opts        ImportOptions
		wantContent string
		want        ImportResult
	}{
		{"keep existing", ImportOptions{}, "old", ImportResult{Skipped: 1, TotalInBackup: 1}},
		{"overwrite", ImportOptions{Overwrite: true}, "hi", ImportResult{Imported: 1, TotalInBackup: 1}},
		{"merge", ImportOptions{Merge: true}, "hi", ImportResult{Imported: 1, TotalInBackup: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.save(t, "k1", "old")

			result, err := env.store.ImportNotes(ctx, bundle, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *result)

			note, err := env.store.GetNote(ctx, "k1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantContent, note.Content)
		})
	}
}

func TestImportNotes_ReservedKeyIsError(t *testing.T) {
	for _, opts := range []ImportOptions{{}, {Overwrite: true}, {Merge: true}} {
		env := newTestEnv(t)
		ctx := context.Background()
		env.save(t, "k1", "old")

		result, err := env.store.ImportNotes(ctx,
			`{"version":"2.0.0","notes":{"metadata":{"content":"hi","threadId":"metadata"}}}`, opts)
		require.NoError(t, err)
		assert.Equal(t, ImportResult{Errors: 1, TotalInBackup: 1}, *result)

		meta, err := env.store.GetMetadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, meta.TotalNotes)
		assert.Contains(t, meta.Notes, "k1")
	}
}

func TestImportNotes_NonStringScalars(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.store.ImportNotes(ctx,
		`{"version":"2.0.0","notes":{`+
			`"k1":{"content":"hi","threadId":"k1","accountIndex":0,"platform":"gmail","timestamp":1700000000000},`+
			`"k2":{"content":42,"threadId":"k2","lastModified":"1700000000500"}}}`,
		ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 2, TotalInBackup: 2}, *result)

	raw, err := env.kv.Get(ctx, storageKey("k1"))
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw[storageKey("k1")], &fields))
	assert.EqualValues(t, 0, fields["accountIndex"], "entry is stored as written")

	k1, err := env.store.GetNote(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, k1)
	assert.Equal(t, "0", k1.AccountIndex)

	k2, err := env.store.GetNote(ctx, "k2")
	require.NoError(t, err)
	require.NotNil(t, k2)
	assert.Equal(t, "42", k2.Content)
	assert.Equal(t, int64(1700000000500), k2.LastModified)

	meta, err := env.store.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TotalNotes)
	assert.Equal(t, "0", meta.Notes["k1"].AccountIndex)
	assert.Equal(t, int64(1700000000000), meta.Notes["k1"].Created)

	all, err := env.store.GetAllNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImportNotes_PreservesUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.ImportNotes(ctx,
		`{"version":"2.0.0","createdDate":"2024-01-01T00:00:00.000Z","notes":{"k1":{"content":"hi","threadId":"k1","color":"red"}}}`,
		ImportOptions{})
	require.NoError(t, err)

	raw, err := env.kv.Get(ctx, storageKey("k1"))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw[storageKey("k1")], &fields))
	assert.Equal(t, "red", fields["color"])
	assert.Equal(t, "2024-01-01T00:00:00.000Z", fields["originalBackupDate"])
	assert.EqualValues(t, env.clock.Now().UnixMilli(), fields["importedAt"])
}

func TestImportNotes_RecordsImport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.save(t, "existing", "x")

	result, err := env.store.ImportNotes(ctx,
		`{"version":"2.0.0","notes":{"existing":{"content":"y","threadId":"existing"},"k1":{"content":"hi","threadId":"k1","platform":"outlook","timestamp":1700000000000},"bad":{"content":"z"}}}`,
		ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 1, Skipped: 1, Errors: 1, TotalInBackup: 3}, *result)

	meta, err := env.store.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TotalNotes)
	require.Contains(t, meta.Notes, "k1")
	assert.Equal(t, PlatformOutlook, meta.Notes["k1"].Platform)
	assert.Equal(t, int64(1700000000000), meta.Notes["k1"].Created)

	require.NotNil(t, meta.LastImport)
	assert.Equal(t, 1, meta.LastImport.ImportedNotes)
	assert.Equal(t, 1, meta.LastImport.SkippedNotes)
	assert.Equal(t, 1, meta.LastImport.Errors)
	assert.Equal(t, "2.0.0", meta.LastImport.SourceVersion)
	assert.Equal(t, env.clock.Now().UnixMilli(), meta.LastImport.Date)
}

func TestImportNotes_NothingImportedLeavesMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.store.ImportNotes(ctx, `{"version":"2.0.0","notes":{}}`, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{}, *result)

	raw, err := env.kv.Get(ctx, metadataKey)
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestImportNotes_Progress(t *testing.T) {
	env := newTestEnv(t)

	var calls [][2]int
	_, err := env.store.ImportNotes(context.Background(),
		`{"version":"2.0.0","notes":{"a":{"content":"1","threadId":"a"},"b":{"content":"2","threadId":"b"},"c":{"content":"3","threadId":"c"}}}`,
		ImportOptions{Progress: func(done, total int) { calls = append(calls, [2]int{done, total}) }})
	require.NoError(t, err)

	require.Len(t, calls, 3)
	assert.Equal(t, [2]int{1, 3}, calls[0])
	assert.Equal(t, [2]int{3, 3}, calls[2])
}

func TestImportNotes_NumericVersion(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.store.ImportNotes(context.Background(),
		`{"version":2,"notes":{"k1":{"content":"hi","threadId":"k1"}}}`, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	meta, err := env.store.GetMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", meta.LastImport.SourceVersion)
}

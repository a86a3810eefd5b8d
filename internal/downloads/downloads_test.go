package downloads

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDownloader_Overwrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := NewFileDownloader(dir)

	req := Request{
		Filename:       "EmailNotes/EmailNotes/email-notes-sync.json",
		Data:           []byte(`{"v":1}`),
		ConflictAction: ConflictOverwrite,
	}

	first, err := d.Download(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, filepath.Join(dir, "EmailNotes", "EmailNotes", "email-notes-sync.json"), first.Path)

	req.Data = []byte(`{"v":2}`)
	second, err := d.Download(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, first.Path, second.Path)

	data, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(second.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileDownloader_Uniquify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := NewFileDownloader(dir)

	req := Request{Filename: "backup.json", Data: []byte(`{}`)}

	first, err := d.Download(ctx, req)
	require.NoError(t, err)
	second, err := d.Download(ctx, req)
	require.NoError(t, err)
	third, err := d.Download(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "backup.json"), first.Path)
	assert.Equal(t, filepath.Join(dir, "backup (1).json"), second.Path)
	assert.Equal(t, filepath.Join(dir, "backup (2).json"), third.Path)
}

func TestFileDownloader_SaveAs(t *testing.T) {
	ctx := context.Background()
	chosenDir := t.TempDir()
	d := NewFileDownloader(t.TempDir())

	var suggested string
	d.SetSaveAs(func(name string) (string, error) {
		suggested = name
		return filepath.Join(chosenDir, "mine.json"), nil
	})

	res, err := d.Download(ctx, Request{Filename: "email-notes-backup.json", Data: []byte(`[]`), SaveAs: true})
	require.NoError(t, err)
	assert.Equal(t, "email-notes-backup.json", suggested)
	assert.Equal(t, filepath.Join(chosenDir, "mine.json"), res.Path)

	// Without SaveAs the picker is not consulted
	suggested = ""
	res, err = d.Download(ctx, Request{Filename: "plain.json", Data: []byte(`[]`)})
	require.NoError(t, err)
	assert.Empty(t, suggested)
	assert.Equal(t, filepath.Join(d.Dir(), "plain.json"), res.Path)
}

func TestFileDownloader_SaveAsCancelled(t *testing.T) {
	d := NewFileDownloader(t.TempDir())
	d.SetSaveAs(func(string) (string, error) { return "", errors.New("cancelled") })

	_, err := d.Download(context.Background(), Request{Filename: "x.json", SaveAs: true})
	assert.Error(t, err)
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"email-notes-backup-2024-01-15-10-30-00.json", true},
		{"EmailNotes/EmailNotes/email-notes-sync.json", true},
		{"", false},
		{"/etc/passwd", false},
		{"../outside.json", false},
		{"EmailNotes/../../outside.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilename(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidFilename)
			}
		})
	}
}

func TestConflictAction_String(t *testing.T) {
	assert.Equal(t, "uniquify", ConflictUniquify.String())
	assert.Equal(t, "overwrite", ConflictOverwrite.String())
	assert.Equal(t, "unknown", ConflictAction(9).String())
}

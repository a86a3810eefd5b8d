package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashContent(t *testing.T) {
	// Known SHA256 of "hello"
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", HashContent([]byte("hello")))

	a := HashContent([]byte(`{"version":"2.0.0"}`))
	assert.Equal(t, a, HashContent([]byte(`{"version":"2.0.0"}`)))
	assert.NotEqual(t, a, HashContent([]byte(`{"version":"2.0.1"}`)))
	assert.Len(t, a, 64)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "email-notes-sync.json")
	content := []byte(`{"notes":{}}`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashContent(content), hash)
}

func TestHashFile_NotFound(t *testing.T) {
	_, err := HashFile("/nonexistent/path/email-notes-sync.json")
	assert.Error(t, err)
}

func TestHashFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	hash, err := HashFile(path)
	require.NoError(t, err)
	// SHA256 of empty input
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hash)
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "2cf24dba", ShortHash("2cf24dba5fb0a30e"))
	assert.Equal(t, "abc", ShortHash("abc"))
}

package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/threadnotes/internal/kv"
	"github.com/vonshlovens/threadnotes/internal/testutil"
)

type testEnv struct {
	store      *Store
	kv         *kv.MemoryStore
	downloader *testutil.RecordingDownloader
	clock      *testutil.StubClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		kv:         kv.NewMemoryStore(),
		downloader: testutil.NewRecordingDownloader(),
		clock:      testutil.FixedClock(),
	}
	env.store = New(env.kv, env.downloader, Options{
		Clock:         env.clock,
		DeviceIDs:     testutil.NewStubIDGenerator(),
		DebounceDelay: 50 * time.Millisecond,
		FrequencyUnit: 20 * time.Millisecond,
	})
	t.Cleanup(env.store.Close)
	return env
}

func (e *testEnv) save(t *testing.T, key, content string) *Note {
	t.Helper()
	note, err := e.store.SaveNote(context.Background(), SaveRequest{Key: key, Content: content, Platform: PlatformGmail})
	require.NoError(t, err)
	return note
}

func TestSaveNote_ThenGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	saved, err := env.store.SaveNote(ctx, SaveRequest{
		Key:              "gmail_account_0_abc123",
		Content:          "call back Tuesday",
		Platform:         PlatformGmail,
		Account:          "gmail_account_0",
		OriginalThreadID: "abc123",
		Subject:          "Quarterly numbers",
		AccountEmail:     "me@example.com",
		AccountIndex:     "0",
	})
	require.NoError(t, err)
	assert.Equal(t, "gmail_account_0_abc123", saved.ThreadID)

	got, err := env.store.GetNote(ctx, "gmail_account_0_abc123")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "call back Tuesday", got.Content)
	assert.Equal(t, PlatformGmail, got.Platform)
	assert.Equal(t, "gmail_account_0", got.Account)
	assert.Equal(t, "abc123", got.OriginalThreadID)
	assert.Equal(t, "Quarterly numbers", got.Subject)
	assert.Equal(t, "me@example.com", got.AccountEmail)
	assert.Equal(t, "0", got.AccountIndex)
	assert.Equal(t, env.clock.Now().UnixMilli(), got.Timestamp)
	assert.Equal(t, env.clock.Now().UnixMilli(), got.LastModified)
}

func TestSaveNote_DoesNotTriggerBackup(t *testing.T) {
	env := newTestEnv(t)
	env.save(t, "k", "text")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, env.downloader.Requests())
}

func TestSaveNote_LastModifiedStrictlyIncreases(t *testing.T) {
	env := newTestEnv(t)

	first := env.save(t, "k", "one")
	// Clock frozen: the second save must still move forward
	second := env.save(t, "k", "two")
	assert.Greater(t, second.LastModified, first.LastModified)

	env.clock.Advance(time.Minute)
	third := env.save(t, "k", "three")
	assert.Equal(t, env.clock.Now().UnixMilli(), third.LastModified)
	assert.Greater(t, third.LastModified, second.LastModified)
}

func TestSaveNote_PreservesCreation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.save(t, "k", "one")
	env.clock.Advance(time.Hour)
	second := env.save(t, "k", "two")

	assert.Equal(t, first.Timestamp, second.Timestamp)

	meta, err := env.store.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Timestamp, meta.Notes["k"].Created)
	assert.Equal(t, second.LastModified, meta.Notes["k"].LastModified)
}

func TestSaveNote_DefaultsToGmail(t *testing.T) {
	env := newTestEnv(t)

	note, err := env.store.SaveNote(context.Background(), SaveRequest{Key: "k", Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, PlatformGmail, note.Platform)
}

func TestSaveNote_AllowsEmptyContent(t *testing.T) {
	env := newTestEnv(t)

	note, err := env.store.SaveNote(context.Background(), SaveRequest{Key: "k", Platform: PlatformOutlook})
	require.NoError(t, err)
	assert.Equal(t, "", note.Content)
	assert.Equal(t, PlatformOutlook, note.Platform)
}

func TestSaveNote_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SaveRequest
	}{
		{"missing key", SaveRequest{Content: "x"}},
		{"reserved key", SaveRequest{Key: "metadata", Content: "x"}},
		{"unknown platform", SaveRequest{Key: "k", Content: "x", Platform: "yahoo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.store.SaveNote(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected ValidationError, got %T", err)
		})
	}
}

func TestGetNote_Missing(t *testing.T) {
	env := newTestEnv(t)

	note, err := env.store.GetNote(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, note)
}

func TestDeleteNote_Absent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.save(t, "other", "keep me")
	before, err := env.kv.Get(ctx, metadataKey)
	require.NoError(t, err)

	existed, err := env.store.DeleteNote(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, existed)

	after, err := env.kv.Get(ctx, metadataKey)
	require.NoError(t, err)
	assert.Equal(t, string(before[metadataKey]), string(after[metadataKey]), "metadata must not change")
	assert.Empty(t, env.downloader.Requests(), "no backup for absent notes")
}

func TestDeleteNote_Present(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.save(t, "k", "bye")
	env.save(t, "other", "stay")

	existed, err := env.store.DeleteNote(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	note, err := env.store.GetNote(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, note)

	meta, err := env.store.GetMetadata(ctx)
	require.NoError(t, err)
	assert.NotContains(t, meta.Notes, "k")
	assert.Equal(t, 1, meta.TotalNotes)

	assert.Equal(t, 1, env.downloader.Count(SyncFilePath), "exactly one immediate backup")
}

func TestDeleteNote_BackupFailureStillDeletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.save(t, "k", "bye")
	env.downloader.Err = errors.New("disk full")

	existed, err := env.store.DeleteNote(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	note, err := env.store.GetNote(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, note)
}

func TestReservedKey_DoesNotReachMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.save(t, "a", "1")
	env.save(t, "b", "2")

	note, err := env.store.GetNote(ctx, "metadata")
	require.NoError(t, err)
	assert.Nil(t, note)

	existed, err := env.store.DeleteNote(ctx, "metadata")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Empty(t, env.downloader.Requests(), "no backup for a key that names no note")

	meta, err := env.store.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TotalNotes)
	assert.Len(t, meta.Notes, 2)

	all, err := env.store.GetAllNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTotalNotesInvariant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	check := func() {
		t.Helper()
		all, err := env.store.GetAllNotes(ctx)
		require.NoError(t, err)
		meta, err := env.store.GetMetadata(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(all), meta.TotalNotes)
		assert.Equal(t, len(all), len(meta.Notes))
		for key := range all {
			assert.Contains(t, meta.Notes, key)
		}
	}

	env.save(t, "a", "1")
	check()
	env.save(t, "b", "2")
	env.save(t, "a", "1 again")
	check()
	_, err := env.store.DeleteNote(ctx, "a")
	require.NoError(t, err)
	check()
	_, err = env.store.DeleteNote(ctx, "a")
	require.NoError(t, err)
	check()

	_, err = env.store.ImportNotes(ctx, `{"version":"2.0.0","notes":{"c":{"content":"3","threadId":"c"}}}`, ImportOptions{})
	require.NoError(t, err)
	check()
}

func TestGetAllNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	all, err := env.store.GetAllNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	env.save(t, "a", "1")
	env.save(t, "b", "2")
	require.NoError(t, env.store.SetExtensionEnabled(ctx, false))

	all, err = env.store.GetAllNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "1", all["a"].Content)
	assert.Equal(t, "2", all["b"].Content)
	assert.NotContains(t, all, "metadata")
}

func TestGetMetadata_Defaults(t *testing.T) {
	env := newTestEnv(t)

	meta, err := env.store.GetMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", meta.Version)
	assert.NotNil(t, meta.Notes)
	assert.Equal(t, 0, meta.TotalNotes)
	assert.Equal(t, env.clock.Now().UnixMilli(), meta.Created)
}

func TestGetStorageUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.save(t, "k", "some content")

	usage, err := env.store.GetStorageUsage(ctx)
	require.NoError(t, err)

	used, err := env.kv.BytesInUse(ctx)
	require.NoError(t, err)

	assert.Equal(t, used, usage.Used)
	assert.Equal(t, int64(5*1024*1024), usage.Quota)
	assert.Equal(t, usage.Quota-used, usage.Available)
	assert.InDelta(t, float64(used)/float64(usage.Quota)*100, usage.Percentage, 1e-9)
}

func TestNoteKey(t *testing.T) {
	assert.Equal(t, "gmail_account_0_abc123", NoteKey("gmail_account_0", "abc123"))
	assert.Equal(t, "abc123", NoteKey("", "abc123"))
}

type failingStore struct {
	kv.Store
	err error
}

func (f failingStore) Get(context.Context, ...string) (map[string][]byte, error) { return nil, f.err }
func (f failingStore) GetAll(context.Context) (map[string][]byte, error)        { return nil, f.err }
func (f failingStore) Set(context.Context, map[string][]byte) error             { return f.err }
func (f failingStore) BytesInUse(context.Context) (int64, error)                { return 0, f.err }

func TestStore_IOErrors(t *testing.T) {
	ctx := context.Background()
	s := New(failingStore{Store: kv.NewMemoryStore(), err: errors.New("quota exceeded")}, testutil.NewRecordingDownloader(), Options{})
	defer s.Close()

	_, err := s.SaveNote(ctx, SaveRequest{Key: "k", Content: "x"})
	assert.True(t, IsIOError(err))

	_, err = s.GetNote(ctx, "k")
	assert.True(t, IsIOError(err))

	_, err = s.DeleteNote(ctx, "k")
	assert.True(t, IsIOError(err))

	_, err = s.GetAllNotes(ctx)
	assert.True(t, IsIOError(err))

	_, err = s.GetStorageUsage(ctx)
	assert.True(t, IsIOError(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

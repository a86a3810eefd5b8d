package notes

import "strings"

// Persisted key layout
const (
	notePrefix           = "email_notes_"
	metadataKey          = "email_notes_metadata"
	backupSettingsKey    = "backupSettings"
	syncSettingsKey      = "syncSettings"
	deviceIDKey          = "deviceId"
	extensionEnabledKey  = "extensionEnabled"
	reservedNoteKey      = "metadata"
	bundleVersion        = "2.0.0"
	metadataVersion      = "1.0.0"
	SyncFileName         = "email-notes-sync.json"
	SyncFolder           = "EmailNotes"
	SyncFilePath         = "EmailNotes/EmailNotes/email-notes-sync.json"
	exportFilenamePrefix = "email-notes-backup-"
	defaultSyncFrequency = 5
)

// NoteKey derives the storage key for a thread from its account prefix
// (for example "gmail_account_0") and the platform's thread id.
func NoteKey(account, originalThreadID string) string {
	if account == "" {
		return originalThreadID
	}
	return account + "_" + originalThreadID
}

func storageKey(key string) string {
	return notePrefix + key
}

// noteStorageKey is storageKey for caller-supplied note keys. It reports
// false for keys that cannot name a note, such as the one that would alias
// the metadata singleton.
func noteStorageKey(key string) (string, bool) {
	if key == "" || key == reservedNoteKey {
		return "", false
	}
	return storageKey(key), true
}

// noteKeyFromStorage returns the note key for a persisted key, or false if
// the key does not hold a note.
func noteKeyFromStorage(k string) (string, bool) {
	if k == metadataKey || !strings.HasPrefix(k, notePrefix) {
		return "", false
	}
	return strings.TrimPrefix(k, notePrefix), true
}

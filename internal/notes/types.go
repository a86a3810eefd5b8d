package notes

// Platform identifies the mail client a note was written in
type Platform string

const (
	PlatformGmail   Platform = "gmail"
	PlatformOutlook Platform = "outlook"
)

// Note is a private annotation attached to one email conversation.
// Timestamps are epoch milliseconds.
type Note struct {
	Content          string   `json:"content"`
	Timestamp        int64    `json:"timestamp"`
	Platform         Platform `json:"platform"`
	ThreadID         string   `json:"threadId"`
	Account          string   `json:"account,omitempty"`
	AccountEmail     string   `json:"accountEmail,omitempty"`
	AccountIndex     string   `json:"accountIndex,omitempty"`
	OriginalThreadID string   `json:"originalThreadId,omitempty"`
	Subject          string   `json:"subject,omitempty"`
	LastModified     int64    `json:"lastModified"`

	// Set on notes restored from a backup bundle
	ImportedAt         int64  `json:"importedAt,omitempty"`
	OriginalBackupDate string `json:"originalBackupDate,omitempty"`
}

// MetadataEntry is the content-free index record kept for every note
type MetadataEntry struct {
	Platform         Platform `json:"platform"`
	Account          string   `json:"account,omitempty"`
	AccountEmail     string   `json:"accountEmail,omitempty"`
	AccountIndex     string   `json:"accountIndex,omitempty"`
	OriginalThreadID string   `json:"originalThreadId,omitempty"`
	LastModified     int64    `json:"lastModified"`
	Created          int64    `json:"created"`
}

// Metadata summarizes the note set. TotalNotes == len(Notes) after every mutation.
type Metadata struct {
	Version     string                   `json:"version"`
	Notes       map[string]MetadataEntry `json:"notes"`
	TotalNotes  int                      `json:"totalNotes"`
	Created     int64                    `json:"created"`
	LastUpdated int64                    `json:"lastUpdated"`
	LastImport  *ImportRecord            `json:"lastImport,omitempty"`
}

// ImportRecord audits the most recent successful import
type ImportRecord struct {
	Date          int64  `json:"date"`
	ImportedNotes int    `json:"importedNotes"`
	SkippedNotes  int    `json:"skippedNotes"`
	Errors        int    `json:"errors"`
	SourceVersion string `json:"sourceVersion"`
}

// Bundle is the export, import and sync file format
type Bundle struct {
	Version     string           `json:"version"`
	CreatedDate string           `json:"createdDate"`
	DeviceID    string           `json:"deviceId"`
	Metadata    *Metadata        `json:"metadata"`
	Notes       map[string]*Note `json:"notes"`
	TotalNotes  int              `json:"totalNotes"`
}

// BackupSettings are the user's backup preferences
type BackupSettings struct {
	AutoBackupEnabled   bool   `json:"autoBackupEnabled"`
	AutoBackupFrequency string `json:"autoBackupFrequency" validate:"oneof=daily weekly monthly"`
	LastAutoBackup      *int64 `json:"lastAutoBackup"`
	BackupLocation      string `json:"backupLocation" validate:"oneof=downloads gdrive icloud"`
	IncludeMetadata     bool   `json:"includeMetadata"`
}

// SyncSettings govern the periodic sync file export
type SyncSettings struct {
	Enabled      bool   `json:"enabled"`
	Frequency    int    `json:"frequency"`
	LastSync     *int64 `json:"lastSync"`
	SyncFileName string `json:"syncFileName"`
	SyncFolder   string `json:"syncFolder,omitempty"`
}

// StorageUsage reports bytes used against the configured quota
type StorageUsage struct {
	Used       int64   `json:"used"`
	Quota      int64   `json:"quota"`
	Percentage float64 `json:"percentage"`
	Available  int64   `json:"available"`
}

// ExportResult describes a finished export download
type ExportResult struct {
	DownloadID int    `json:"downloadId"`
	Filename   string `json:"filename"`
	Path       string `json:"-"`
	NotesCount int    `json:"notesCount"`
}

// ImportOptions control collision handling during import.
// Progress, when set, is called after each bundle entry is processed.
type ImportOptions struct {
	Merge     bool                  `json:"merge"`
	Overwrite bool                  `json:"overwrite"`
	Progress  func(done, total int) `json:"-"`
}

// ImportResult counts what happened to each bundle entry
type ImportResult struct {
	Imported      int `json:"imported"`
	Skipped       int `json:"skipped"`
	Errors        int `json:"errors"`
	TotalInBackup int `json:"totalInBackup"`
}

// SyncResult describes a sync file write
type SyncResult struct {
	DownloadID int    `json:"downloadId"`
	Path       string `json:"-"`
}

// RecoveryResult is the signal-only outcome of a data recovery attempt
type RecoveryResult struct {
	Success            bool   `json:"success"`
	RequiresUserAction bool   `json:"requiresUserAction"`
	Message            string `json:"message"`
	LastSync           *int64 `json:"-"`
}

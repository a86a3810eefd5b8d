// Package rpc exposes the note store as single round-trip message actions.
// Every request gets exactly one Response, including on failure.
package rpc

import (
	"encoding/json"

	"github.com/vonshlovens/threadnotes/internal/notes"
)

// Action names
const (
	ActionSaveNote               = "saveNote"
	ActionGetNote                = "getNote"
	ActionDeleteNote             = "deleteNote"
	ActionGetAllNotes            = "getAllNotes"
	ActionGetStorageUsage        = "getStorageUsage"
	ActionGetMetadata            = "getMetadata"
	ActionExportNotes            = "exportNotes"
	ActionImportNotes            = "importNotes"
	ActionGetBackupSettings      = "getBackupSettings"
	ActionSaveBackupSettings     = "saveBackupSettings"
	ActionEnableAutoSync         = "enableAutoSync"
	ActionDisableAutoSync        = "disableAutoSync"
	ActionGetSyncSettings        = "getSyncSettings"
	ActionCreateSyncFile         = "createSyncFile"
	ActionTriggerImmediateSync   = "triggerImmediateSync"
	ActionTriggerDebouncedBackup = "triggerDebouncedBackup"
	ActionImmediateBackup        = "immediateBackup"
	ActionAttemptDataRecovery    = "attemptDataRecovery"
	ActionGetExtensionEnabled    = "getExtensionEnabled"
	ActionSetExtensionEnabled    = "setExtensionEnabled"
)

// ImportOptions is the wire form of notes.ImportOptions
type ImportOptions struct {
	Merge     bool `json:"merge"`
	Overwrite bool `json:"overwrite"`
}

// Request is one inbound message
type Request struct {
	ID               string          `json:"id,omitempty"`
	Action           string          `json:"action"`
	ThreadID         string          `json:"threadId,omitempty"`
	Content          string          `json:"content,omitempty"`
	Platform         string          `json:"platform,omitempty"`
	Account          string          `json:"account,omitempty"`
	OriginalThreadID string          `json:"originalThreadId,omitempty"`
	Subject          string          `json:"subject,omitempty"`
	AccountEmail     string          `json:"accountEmail,omitempty"`
	AccountIndex     string          `json:"accountIndex,omitempty"`
	FileContent      string          `json:"fileContent,omitempty"`
	Options          *ImportOptions  `json:"options,omitempty"`
	Settings         json.RawMessage `json:"settings,omitempty"`
	Frequency        int             `json:"frequency,omitempty"`
	Enabled          *bool           `json:"enabled,omitempty"`
}

// NotePayload carries getNote's note, which is null when absent
type NotePayload struct {
	Note *notes.Note `json:"note"`
}

// NotesPayload carries getAllNotes' mapping, which is {} when empty
type NotesPayload struct {
	Notes map[string]*notes.Note `json:"notes"`
}

// Response is the single reply to a Request. Only the payload fields of the
// handled action are set.
type Response struct {
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	NoteData *notes.Note `json:"noteData,omitempty"`
	*NotePayload
	Existed *bool `json:"existed,omitempty"`
	*NotesPayload
	Usage    *notes.StorageUsage `json:"usage,omitempty"`
	Metadata *notes.Metadata     `json:"metadata,omitempty"`

	DownloadID *int   `json:"downloadId,omitempty"`
	Filename   string `json:"filename,omitempty"`
	NotesCount *int   `json:"notesCount,omitempty"`
	*notes.ImportResult

	Settings           any   `json:"settings,omitempty"`
	RequiresUserAction bool  `json:"requiresUserAction,omitempty"`
	Enabled            *bool `json:"enabled,omitempty"`
}

func success() Response {
	return Response{Success: true}
}

func failure(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

func ptr[T any](v T) *T {
	return &v
}

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vonshlovens/threadnotes/internal/notes"
)

// Handler answers one Request
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

type actionFunc func(ctx context.Context, req Request) (Response, error)

// Dispatcher routes requests to the note store by action name
type Dispatcher struct {
	store   *notes.Store
	actions map[string]actionFunc
}

// NewDispatcher creates a dispatcher over store
func NewDispatcher(store *notes.Store) *Dispatcher {
	d := &Dispatcher{store: store}
	d.actions = map[string]actionFunc{
		ActionSaveNote:               d.saveNote,
		ActionGetNote:                d.getNote,
		ActionDeleteNote:             d.deleteNote,
		ActionGetAllNotes:            d.getAllNotes,
		ActionGetStorageUsage:        d.getStorageUsage,
		ActionGetMetadata:            d.getMetadata,
		ActionExportNotes:            d.exportNotes,
		ActionImportNotes:            d.importNotes,
		ActionGetBackupSettings:      d.getBackupSettings,
		ActionSaveBackupSettings:     d.saveBackupSettings,
		ActionEnableAutoSync:         d.enableAutoSync,
		ActionDisableAutoSync:        d.disableAutoSync,
		ActionGetSyncSettings:        d.getSyncSettings,
		ActionCreateSyncFile:         d.createSyncFile,
		ActionTriggerImmediateSync:   d.triggerImmediateSync,
		ActionTriggerDebouncedBackup: d.triggerDebouncedBackup,
		ActionImmediateBackup:        d.immediateBackup,
		ActionAttemptDataRecovery:    d.attemptDataRecovery,
		ActionGetExtensionEnabled:    d.getExtensionEnabled,
		ActionSetExtensionEnabled:    d.setExtensionEnabled,
	}
	return d
}

// Handle runs the action named by req and always returns a Response.
// Errors and panics become {success:false, error}.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (resp Response) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("action panicked", "action", req.Action, "panic", r)
			resp = failure(fmt.Errorf("internal error: %v", r))
		}
		resp.ID = req.ID
		slog.Debug("action handled",
			"action", req.Action,
			"success", resp.Success,
			"duration_ms", time.Since(start).Milliseconds())
	}()

	fn, found := d.actions[req.Action]
	if !found {
		return failure(errors.New("Unknown action"))
	}

	resp, err := fn(ctx, req)
	if err != nil {
		slog.Warn("action failed", "action", req.Action, "error", err)
		return failure(err)
	}
	return resp
}

func (d *Dispatcher) saveNote(ctx context.Context, req Request) (Response, error) {
	note, err := d.store.SaveNote(ctx, notes.SaveRequest{
		Key:              req.ThreadID,
		Content:          req.Content,
		Platform:         notes.Platform(req.Platform),
		Account:          req.Account,
		OriginalThreadID: req.OriginalThreadID,
		Subject:          req.Subject,
		AccountEmail:     req.AccountEmail,
		AccountIndex:     req.AccountIndex,
	})
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.NoteData = note
	return resp, nil
}

func (d *Dispatcher) getNote(ctx context.Context, req Request) (Response, error) {
	note, err := d.store.GetNote(ctx, req.ThreadID)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.NotePayload = &NotePayload{Note: note}
	return resp, nil
}

func (d *Dispatcher) deleteNote(ctx context.Context, req Request) (Response, error) {
	existed, err := d.store.DeleteNote(ctx, req.ThreadID)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Existed = ptr(existed)
	if !existed {
		resp.Message = "Note not found"
	}
	return resp, nil
}

func (d *Dispatcher) getAllNotes(ctx context.Context, _ Request) (Response, error) {
	all, err := d.store.GetAllNotes(ctx)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.NotesPayload = &NotesPayload{Notes: all}
	return resp, nil
}

func (d *Dispatcher) getStorageUsage(ctx context.Context, _ Request) (Response, error) {
	usage, err := d.store.GetStorageUsage(ctx)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Usage = usage
	return resp, nil
}

func (d *Dispatcher) getMetadata(ctx context.Context, _ Request) (Response, error) {
	meta, err := d.store.GetMetadata(ctx)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Metadata = meta
	return resp, nil
}

func (d *Dispatcher) exportNotes(ctx context.Context, _ Request) (Response, error) {
	res, err := d.store.ExportNotes(ctx)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.DownloadID = ptr(res.DownloadID)
	resp.Filename = res.Filename
	resp.NotesCount = ptr(res.NotesCount)
	return resp, nil
}

func (d *Dispatcher) importNotes(ctx context.Context, req Request) (Response, error) {
	var opts notes.ImportOptions
	if req.Options != nil {
		opts.Merge = req.Options.Merge
		opts.Overwrite = req.Options.Overwrite
	}

	res, err := d.store.ImportNotes(ctx, req.FileContent, opts)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.ImportResult = res
	return resp, nil
}

func (d *Dispatcher) getBackupSettings(ctx context.Context, _ Request) (Response, error) {
	settings, err := d.store.GetBackupSettings(ctx)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Settings = settings
	return resp, nil
}

// saveBackupSettings applies the supplied fields over the current settings
func (d *Dispatcher) saveBackupSettings(ctx context.Context, req Request) (Response, error) {
	if len(bytes.TrimSpace(req.Settings)) == 0 || bytes.Equal(bytes.TrimSpace(req.Settings), []byte("null")) {
		return Response{}, d.store.SaveBackupSettings(ctx, nil)
	}

	settings, err := d.store.GetBackupSettings(ctx)
	if err != nil {
		return Response{}, err
	}
	if err := json.Unmarshal(req.Settings, settings); err != nil {
		return Response{}, &notes.ValidationError{Msg: fmt.Sprintf("invalid backup settings: %v", err)}
	}
	if err := d.store.SaveBackupSettings(ctx, settings); err != nil {
		return Response{}, err
	}
	return success(), nil
}

func (d *Dispatcher) enableAutoSync(ctx context.Context, req Request) (Response, error) {
	if err := d.store.EnableAutoSync(ctx, req.Frequency); err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Message = "Auto-sync enabled"
	return resp, nil
}

func (d *Dispatcher) disableAutoSync(ctx context.Context, _ Request) (Response, error) {
	if err := d.store.DisableAutoSync(ctx); err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Message = "Auto-sync disabled"
	return resp, nil
}

func (d *Dispatcher) getSyncSettings(ctx context.Context, _ Request) (Response, error) {
	settings, err := d.store.GetSyncSettings(ctx)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Settings = settings
	return resp, nil
}

func (d *Dispatcher) createSyncFile(ctx context.Context, _ Request) (Response, error) {
	res, err := d.store.CreateSyncFile(ctx)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.DownloadID = ptr(res.DownloadID)
	return resp, nil
}

func (d *Dispatcher) triggerImmediateSync(ctx context.Context, _ Request) (Response, error) {
	if _, err := d.store.PerformAutoSync(ctx); err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Message = "Sync completed successfully"
	return resp, nil
}

func (d *Dispatcher) triggerDebouncedBackup(_ context.Context, _ Request) (Response, error) {
	d.store.TriggerDebouncedBackup()
	resp := success()
	resp.Message = "Debounced backup scheduled"
	return resp, nil
}

func (d *Dispatcher) immediateBackup(ctx context.Context, _ Request) (Response, error) {
	res, err := d.store.ImmediateBackup(ctx)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.DownloadID = ptr(res.DownloadID)
	return resp, nil
}

func (d *Dispatcher) attemptDataRecovery(ctx context.Context, _ Request) (Response, error) {
	res, err := d.store.AttemptDataRecovery(ctx)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Success:            res.Success,
		RequiresUserAction: res.RequiresUserAction,
		Message:            res.Message,
	}, nil
}

func (d *Dispatcher) getExtensionEnabled(ctx context.Context, _ Request) (Response, error) {
	enabled, err := d.store.IsExtensionEnabled(ctx)
	if err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Enabled = ptr(enabled)
	return resp, nil
}

func (d *Dispatcher) setExtensionEnabled(ctx context.Context, req Request) (Response, error) {
	if req.Enabled == nil {
		return Response{}, &notes.ValidationError{Msg: "enabled is required"}
	}
	if err := d.store.SetExtensionEnabled(ctx, *req.Enabled); err != nil {
		return Response{}, err
	}
	resp := success()
	resp.Enabled = ptr(*req.Enabled)
	return resp, nil
}

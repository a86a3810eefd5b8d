package notes

import (
	"context"
	"log/slog"
	"time"

	"github.com/vonshlovens/threadnotes/internal/downloads"
)

const backgroundSyncTimeout = time.Minute

// CreateSyncFile serializes the full bundle over the fixed sync file path,
// without prompting, and records the sync time.
func (s *Store) CreateSyncFile(ctx context.Context) (*SyncResult, error) {
	bundle, err := s.BuildBundle(ctx)
	if err != nil {
		return nil, err
	}

	data, err := encodeBundle(bundle)
	if err != nil {
		return nil, err
	}

	res, err := s.downloader.Download(ctx, downloads.Request{
		Filename:       SyncFilePath,
		Data:           data,
		SaveAs:         false,
		ConflictAction: downloads.ConflictOverwrite,
	})
	if err != nil {
		return nil, ioErr("create sync file", err)
	}

	settings, err := s.GetSyncSettings(ctx)
	if err != nil {
		slog.Warn("failed to read sync settings", "error", err)
		settings = defaultSyncSettings()
	}
	now := s.now()
	settings.LastSync = &now
	if err := s.setJSON(ctx, syncSettingsKey, settings); err != nil {
		slog.Warn("failed to record last sync time", "error", err)
	}

	if s.afterSync != nil {
		s.afterSync(res.Path, data)
	}

	slog.Debug("sync file written", "download_id", res.ID, "path", res.Path, "notes", bundle.TotalNotes)

	return &SyncResult{DownloadID: res.ID, Path: res.Path}, nil
}

// PerformAutoSync re-exports the current state over the sync file.
// It does not look for or merge external edits to that file.
func (s *Store) PerformAutoSync(ctx context.Context) (*SyncResult, error) {
	return s.CreateSyncFile(ctx)
}

// TriggerDebouncedBackup schedules one sync file write after the debounce
// delay, replacing any write scheduled by an earlier call.
func (s *Store) TriggerDebouncedBackup() {
	s.debouncer.Schedule(backupDebounceKey, func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundSyncTimeout)
		defer cancel()

		slog.Debug("performing debounced backup")
		if _, err := s.CreateSyncFile(ctx); err != nil {
			slog.Error("debounced backup failed", "error", err)
		}
	})
}

// ImmediateBackup writes the sync file now. A pending debounced backup is
// dropped since this write already covers it.
func (s *Store) ImmediateBackup(ctx context.Context) (*SyncResult, error) {
	if s.debouncer.Cancel(backupDebounceKey) {
		slog.Debug("immediate backup superseded pending debounced backup")
	}
	return s.CreateSyncFile(ctx)
}

// EnableAutoSync writes the sync file now and then every frequencyMinutes.
// A failed initial write is logged and does not prevent enabling.
func (s *Store) EnableAutoSync(ctx context.Context, frequencyMinutes int) error {
	if frequencyMinutes <= 0 {
		frequencyMinutes = defaultSyncFrequency
	}

	s.stopAutoSync()

	if _, err := s.CreateSyncFile(ctx); err != nil {
		slog.Error("initial sync file write failed", "error", err)
	}

	s.startAutoSync(time.Duration(frequencyMinutes) * s.unit)

	now := s.now()
	settings := &SyncSettings{
		Enabled:      true,
		Frequency:    frequencyMinutes,
		LastSync:     &now,
		SyncFileName: SyncFileName,
		SyncFolder:   SyncFolder,
	}
	if err := s.setJSON(ctx, syncSettingsKey, settings); err != nil {
		return ioErr("save sync settings", err)
	}

	slog.Info("auto-sync enabled", "frequency_minutes", frequencyMinutes)
	return nil
}

// DisableAutoSync stops the periodic write. A write already in flight completes.
func (s *Store) DisableAutoSync(ctx context.Context) error {
	s.stopAutoSync()

	settings := &SyncSettings{
		Enabled:      false,
		Frequency:    defaultSyncFrequency,
		LastSync:     nil,
		SyncFileName: SyncFileName,
		SyncFolder:   SyncFolder,
	}
	if err := s.setJSON(ctx, syncSettingsKey, settings); err != nil {
		return ioErr("save sync settings", err)
	}

	slog.Info("auto-sync disabled")
	return nil
}

// ResumeAutoSync re-arms the periodic write from persisted settings without
// writing immediately. It reports whether auto-sync was enabled.
func (s *Store) ResumeAutoSync(ctx context.Context) (bool, error) {
	settings, err := s.GetSyncSettings(ctx)
	if err != nil {
		return false, err
	}
	if !settings.Enabled {
		return false, nil
	}

	freq := settings.Frequency
	if freq <= 0 {
		freq = defaultSyncFrequency
	}
	s.stopAutoSync()
	s.startAutoSync(time.Duration(freq) * s.unit)

	slog.Info("auto-sync resumed", "frequency_minutes", freq)
	return true, nil
}

// AutoSyncRunning reports whether the periodic write is armed in this process
func (s *Store) AutoSyncRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncStop != nil
}

func (s *Store) startAutoSync(interval time.Duration) {
	stop := make(chan struct{})
	done := make(chan struct{})

	s.mu.Lock()
	s.syncStop = stop
	s.syncDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), backgroundSyncTimeout)
				if _, err := s.PerformAutoSync(ctx); err != nil {
					slog.Error("auto-sync failed", "error", err)
				}
				cancel()
			}
		}
	}()
}

// stopAutoSync halts the ticker goroutine and waits for it to exit
func (s *Store) stopAutoSync() {
	s.mu.Lock()
	stop, done := s.syncStop, s.syncDone
	s.syncStop, s.syncDone = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// AttemptDataRecovery cannot repopulate storage on its own; it reports
// where the last sync file should be so the user can import it.
func (s *Store) AttemptDataRecovery(ctx context.Context) (*RecoveryResult, error) {
	settings, err := s.GetSyncSettings(ctx)
	if err != nil {
		return nil, err
	}

	if settings.LastSync != nil {
		slog.Info("last sync file write",
			"at", time.UnixMilli(*settings.LastSync).UTC().Format(time.RFC3339),
			"path", "Downloads/"+SyncFilePath)
	}

	return &RecoveryResult{
		Success:            false,
		RequiresUserAction: true,
		Message:            "Data recovery requires manually importing the sync file from Downloads/" + SyncFilePath,
		LastSync:           settings.LastSync,
	}, nil
}

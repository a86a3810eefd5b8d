package notes

import (
	"context"
	"fmt"
)

func defaultBackupSettings() *BackupSettings {
	return &BackupSettings{
		AutoBackupEnabled:   false,
		AutoBackupFrequency: "weekly",
		LastAutoBackup:      nil,
		BackupLocation:      "downloads",
		IncludeMetadata:     true,
	}
}

func defaultSyncSettings() *SyncSettings {
	return &SyncSettings{
		Enabled:      false,
		Frequency:    defaultSyncFrequency,
		LastSync:     nil,
		SyncFileName: SyncFileName,
		SyncFolder:   SyncFolder,
	}
}

// GetBackupSettings returns stored backup settings or the defaults
func (s *Store) GetBackupSettings(ctx context.Context) (*BackupSettings, error) {
	settings := defaultBackupSettings()
	found, err := s.getJSON(ctx, backupSettingsKey, settings)
	if err != nil {
		return nil, ioErr("get backup settings", err)
	}
	if !found {
		return defaultBackupSettings(), nil
	}
	return settings, nil
}

// SaveBackupSettings validates and replaces the backup settings
func (s *Store) SaveBackupSettings(ctx context.Context, settings *BackupSettings) error {
	if settings == nil {
		return &ValidationError{Msg: "backup settings missing"}
	}
	if err := s.validate.Struct(settings); err != nil {
		return &ValidationError{Msg: fmt.Sprintf("invalid backup settings: %v", err)}
	}
	if err := s.setJSON(ctx, backupSettingsKey, settings); err != nil {
		return ioErr("save backup settings", err)
	}
	return nil
}

// GetSyncSettings returns stored sync settings or the defaults
func (s *Store) GetSyncSettings(ctx context.Context) (*SyncSettings, error) {
	settings := defaultSyncSettings()
	found, err := s.getJSON(ctx, syncSettingsKey, settings)
	if err != nil {
		return nil, ioErr("get sync settings", err)
	}
	if !found {
		return defaultSyncSettings(), nil
	}
	return settings, nil
}

// GetDeviceID returns the persisted device id, generating it on first use
func (s *Store) GetDeviceID(ctx context.Context) (string, error) {
	var id string
	found, err := s.getJSON(ctx, deviceIDKey, &id)
	if err != nil {
		return "", ioErr("get device id", err)
	}
	if found && id != "" {
		return id, nil
	}

	id = s.ids.New()
	if err := s.setJSON(ctx, deviceIDKey, id); err != nil {
		return "", ioErr("save device id", err)
	}
	return id, nil
}

// IsExtensionEnabled reports the on/off switch; absent means enabled
func (s *Store) IsExtensionEnabled(ctx context.Context) (bool, error) {
	enabled := true
	if _, err := s.getJSON(ctx, extensionEnabledKey, &enabled); err != nil {
		return false, ioErr("get extension state", err)
	}
	return enabled, nil
}

// SetExtensionEnabled persists the on/off switch
func (s *Store) SetExtensionEnabled(ctx context.Context, enabled bool) error {
	if err := s.setJSON(ctx, extensionEnabledKey, enabled); err != nil {
		return ioErr("set extension state", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/threadnotes/internal/notes"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Manage the auto-sync file",
		Long:  `The sync file is a full backup kept at Downloads/` + notes.SyncFilePath + ` and rewritten in place.`,
	}
	cmd.AddCommand(syncEnableCmd(), syncDisableCmd(), syncNowCmd(), syncStatusCmd())
	return cmd
}

func syncEnableCmd() *cobra.Command {
	var frequency int

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Turn on auto-sync and write the sync file now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if frequency <= 0 {
				frequency = a.cfg.Sync.FrequencyMinutes
			}
			if err := a.store.EnableAutoSync(ctx, frequency); err != nil {
				return err
			}

			fmt.Printf("Auto-sync enabled every %d minutes; sync file at %s\n", frequency, a.syncFilePath())
			if !a.cfg.Sync.ResumeOnStart {
				fmt.Println("Periodic writes run inside `threadnotes daemon`; set sync.resume_on_start to have it pick this up.")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&frequency, "frequency", "f", 0, "minutes between sync file writes (default from config)")
	return cmd
}

func syncDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn off auto-sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.DisableAutoSync(ctx); err != nil {
				return err
			}
			fmt.Println("Auto-sync disabled.")
			return nil
		},
	}
}

func syncNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Write the sync file immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.store.ImmediateBackup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Sync file written to %s\n", res.Path)
			return nil
		},
	}
}

func syncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show auto-sync settings and sync file state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			settings, err := a.store.GetSyncSettings(ctx)
			if err != nil {
				return err
			}
			if _, err := a.monitor.Check(a.syncFilePath()); err != nil {
				return fmt.Errorf("failed to check sync file: %w", err)
			}

			printSyncStatus(a, settings)
			return nil
		},
	}
}

func printSyncStatus(a *app, settings *notes.SyncSettings) {
	fmt.Printf("Auto-sync: %s\n", enabledString(settings.Enabled))
	fmt.Printf("  Frequency: %d minutes\n", settings.Frequency)
	if settings.LastSync != nil {
		fmt.Printf("  Last Sync: %s\n", formatMillis(*settings.LastSync))
	}
	fmt.Printf("  Sync File: %s\n", a.syncFilePath())

	fs := a.monitor.Status(a.syncFilePath())
	if fs == nil {
		return
	}
	fmt.Printf("  Writes Recorded: %d\n", fs.Writes)
	if fs.HasExternalChange() {
		fmt.Printf("  Changed Externally: %s\n", fs.ExternalChangeAt.Local().Format(time.RFC3339))
		fmt.Printf("  The next sync will overwrite it. To keep its notes run: threadnotes import %q --merge\n", a.syncFilePath())
	}
}

func enabledString(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

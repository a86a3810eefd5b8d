package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/vonshlovens/threadnotes/internal/notes"
)

func noteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Save, show, delete and list notes",
	}
	cmd.AddCommand(noteSaveCmd(), noteGetCmd(), noteDeleteCmd(), noteListCmd())
	return cmd
}

func noteSaveCmd() *cobra.Command {
	var req notes.SaveRequest
	var platform string

	cmd := &cobra.Command{
		Use:   "save [key] <content>",
		Short: "Create or replace a note",
		Long: `Saves a note under key. With --account and --thread the key may be omitted and is derived as <account>_<thread>.
Use "-" as content to read it from stdin. A sync file write is scheduled after the save.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			content := args[len(args)-1]
			if len(args) == 2 {
				req.Key = args[0]
			} else {
				req.Key = notes.NoteKey(req.Account, req.OriginalThreadID)
			}
			if req.Key == "" {
				return fmt.Errorf("a key or --thread is required")
			}

			if content == "-" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				content = strings.TrimRight(string(data), "\n")
			}
			req.Content = content
			req.Platform = notes.Platform(platform)

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			note, err := a.store.SaveNote(ctx, req)
			if err != nil {
				return err
			}
			a.store.TriggerDebouncedBackup()

			fmt.Printf("Saved note %s (%s, %d chars)\n", note.ThreadID, note.Platform, len(note.Content))
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "gmail", "mail platform (gmail or outlook)")
	cmd.Flags().StringVar(&req.Account, "account", "", "account prefix, e.g. gmail_account_0")
	cmd.Flags().StringVar(&req.OriginalThreadID, "thread", "", "platform thread id")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "conversation subject")
	cmd.Flags().StringVar(&req.AccountEmail, "email", "", "account email address")
	cmd.Flags().StringVar(&req.AccountIndex, "index", "", "account index within the mail client")

	return cmd
}

func noteGetCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			note, err := a.store.GetNote(ctx, args[0])
			if err != nil {
				return err
			}
			if note == nil {
				return fmt.Errorf("no note for %s", args[0])
			}

			if asJSON {
				return printJSON(note)
			}
			fmt.Println(note.Content)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full note as JSON")
	return cmd
}

func noteDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a note and refresh the sync file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			existed, err := a.store.DeleteNote(ctx, args[0])
			if err != nil {
				return err
			}
			if !existed {
				fmt.Println("Note not found.")
				return nil
			}
			fmt.Printf("Deleted note %s\n", args[0])
			return nil
		},
	}
}

func noteListCmd() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, most recently modified first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			all, err := a.store.GetAllNotes(ctx)
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(all))
			for k, n := range all {
				if platform != "" && string(n.Platform) != platform {
					continue
				}
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool {
				return all[keys[i]].LastModified > all[keys[j]].LastModified
			})

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tPLATFORM\tMODIFIED\tSUBJECT\tNOTE")
			for _, k := range keys {
				n := all[k]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					k, n.Platform, formatMillis(n.LastModified), truncate(n.Subject, 30), truncate(firstLine(n.Content), 40))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Printf("\n%d notes\n", len(keys))
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "only list notes for this platform")
	return cmd
}

func exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a timestamped backup of all notes",
		Long:  `Writes email-notes-backup-<date>-<time>.json to the downloads folder, or to --output. An existing file is never replaced; a numbered name is used instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if output != "" {
				a.downloader.SetSaveAs(func(suggested string) (string, error) {
					if info, err := os.Stat(output); err == nil && info.IsDir() {
						return filepath.Join(output, suggested), nil
					}
					return output, nil
				})
			}

			res, err := a.store.ExportNotes(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Exported %d notes to %s\n", res.NotesCount, res.Path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file or directory to write the backup to")
	return cmd
}

func importCmd() *cobra.Command {
	var merge, overwrite bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Restore notes from a backup or sync file",
		Long: `Imports every valid note in a backup bundle. Existing notes are kept unless --overwrite is given;
--merge writes every valid note regardless.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var bar *progressbar.ProgressBar
			opts := notes.ImportOptions{
				Merge:     merge,
				Overwrite: overwrite,
				Progress: func(done, total int) {
					if bar == nil {
						bar = progressbar.NewOptions(total,
							progressbar.OptionSetDescription("Importing notes"),
							progressbar.OptionShowCount(),
							progressbar.OptionSetWidth(40),
							progressbar.OptionClearOnFinish(),
						)
					}
					bar.Set(done)
				},
			}

			res, err := a.store.ImportNotes(ctx, string(data), opts)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			fmt.Printf("Imported %d, skipped %d, errors %d (of %d in backup)\n",
				res.Imported, res.Skipped, res.Errors, res.TotalInBackup)
			if res.Skipped > 0 && !overwrite && !merge {
				fmt.Println("Skipped notes already exist; rerun with --overwrite to replace them.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&merge, "merge", false, "write every valid note, replacing existing ones")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace notes that already exist")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage usage, note counts and sync info",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			usage, err := a.store.GetStorageUsage(ctx)
			if err != nil {
				return err
			}
			meta, err := a.store.GetMetadata(ctx)
			if err != nil {
				return err
			}
			syncSettings, err := a.store.GetSyncSettings(ctx)
			if err != nil {
				return err
			}

			fmt.Println("=== Threadnotes Status ===")
			fmt.Printf("Storage: %s\n", a.cfg.Storage.Backend)
			printBackendStatus(ctx, a)
			fmt.Printf("  Used: %d of %d bytes (%.1f%%)\n", usage.Used, usage.Quota, usage.Percentage)
			fmt.Println()
			fmt.Printf("Notes: %d\n", meta.TotalNotes)
			if meta.LastUpdated != 0 {
				fmt.Printf("  Last Updated: %s\n", formatMillis(meta.LastUpdated))
			}
			if meta.LastImport != nil {
				fmt.Printf("  Last Import: %s (%d imported, %d skipped, %d errors)\n",
					formatMillis(meta.LastImport.Date), meta.LastImport.ImportedNotes,
					meta.LastImport.SkippedNotes, meta.LastImport.Errors)
			}
			fmt.Println()
			printSyncStatus(a, syncSettings)

			return nil
		},
	}
}

func backupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List backup files in the downloads folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fsys := os.DirFS(cfg.DownloadsDir)
			matches, err := doublestar.Glob(fsys, "**/email-notes-backup-*.json")
			if err != nil {
				return fmt.Errorf("failed to search %s: %w", cfg.DownloadsDir, err)
			}
			if len(matches) == 0 {
				fmt.Printf("No backups found in %s\n", cfg.DownloadsDir)
				return nil
			}

			// Timestamped names sort chronologically
			sort.Sort(sort.Reverse(sort.StringSlice(matches)))

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tNOTES\tCREATED\tDEVICE")
			for _, m := range matches {
				p := filepath.Join(cfg.DownloadsDir, filepath.FromSlash(m))
				summary := summarizeBackup(p)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p, summary.notes, summary.created, summary.device)
			}
			return tw.Flush()
		},
	}
}

func recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Explain how to restore notes from the sync file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.store.AttemptDataRecovery(ctx)
			if err != nil {
				return err
			}

			fmt.Println(res.Message)
			if res.LastSync != nil {
				fmt.Printf("Last sync file write: %s\n", formatMillis(*res.LastSync))
			}
			if _, err := os.Stat(a.syncFilePath()); err == nil {
				fmt.Printf("\nTo restore, run:\n  threadnotes import %q\n", a.syncFilePath())
			} else {
				fmt.Printf("\nNo sync file found at %s\n", a.syncFilePath())
			}
			return nil
		},
	}
}

type backupSummary struct {
	notes, created, device string
}

// summarizeBackup reads the header fields of a bundle for display
func summarizeBackup(path string) backupSummary {
	s := backupSummary{notes: "?", created: "?", device: "?"}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var bundle struct {
		CreatedDate string `json:"createdDate"`
		DeviceID    string `json:"deviceId"`
		TotalNotes  *int   `json:"totalNotes"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return s
	}

	if bundle.TotalNotes != nil {
		s.notes = fmt.Sprint(*bundle.TotalNotes)
	}
	if bundle.CreatedDate != "" {
		s.created = bundle.CreatedDate
	}
	if bundle.DeviceID != "" {
		s.device = bundle.DeviceID
	}
	return s
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

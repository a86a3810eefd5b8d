package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vonshlovens/threadnotes/internal/config"
	"github.com/vonshlovens/threadnotes/internal/db"
	"github.com/vonshlovens/threadnotes/internal/kv"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func printBackendStatus(ctx context.Context, a *app) {
	switch s := a.kv.(type) {
	case db.StatusReporter:
		status, err := s.GetStatus(ctx)
		if err != nil {
			fmt.Printf("  Status: Disconnected (%v)\n", err)
			return
		}
		fmt.Printf("  Status: Connected\n")
		fmt.Printf("  Entries: %d\n", status.TotalEntries)
		if status.LastWrite != nil {
			fmt.Printf("  Last Write: %s\n", status.LastWrite.Format(time.RFC3339))
		}
		if pg := a.cfg.Storage.Postgres; pg != nil && a.cfg.Storage.Backend == "postgres" {
			fmt.Printf("  Host: %s\n", pg.Host)
			fmt.Printf("  Database: %s\n", pg.Database)
			fmt.Printf("  Schema: %s\n", pg.Schema)
		} else {
			fmt.Printf("  Path: %s\n", a.cfg.StoragePath())
		}
	case *kv.FileStore:
		fmt.Printf("  Path: %s\n", s.Path())
	}
}

func migrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Applies pending migrations for the sqlite or postgres backend and prints migration status. File and memory backends have nothing to migrate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var migrator db.Migrator
			switch cfg.Storage.Backend {
			case "postgres":
				database, err := db.New(ctx, cfg.Storage.Postgres)
				if err != nil {
					return fmt.Errorf("failed to connect to database: %w", err)
				}
				defer database.Close()

				if !statusOnly {
					if err := database.RunMigrations(ctx); err != nil {
						return fmt.Errorf("migration failed: %w", err)
					}
				}
				migrator = database

			case "sqlite":
				// Opening applies pending migrations
				store, err := db.NewSQLiteStore(cfg.StoragePath())
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				defer store.Close()
				migrator = store

			default:
				fmt.Printf("The %s backend has no migrations.\n", cfg.Storage.Backend)
				return nil
			}

			if err := migrator.MigrationStatus(); err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			if !statusOnly {
				fmt.Println("Migrations completed successfully.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "only print migration status (postgres)")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup to create config file",
		Long:  `Interactively creates a configuration file for the storage backend and downloads folder.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)
			ask := func(prompt, def string) string {
				if def != "" {
					fmt.Printf("%s [%s]: ", prompt, def)
				} else {
					fmt.Printf("%s: ", prompt)
				}
				answer, _ := reader.ReadString('\n')
				answer = strings.TrimSpace(answer)
				if answer == "" {
					return def
				}
				return answer
			}

			cfg := config.DefaultConfig()

			fmt.Println("=== Threadnotes Setup ===")
			fmt.Println()

			cfg.DownloadsDir = ask("Downloads folder", cfg.DownloadsDir)
			if _, err := os.Stat(cfg.DownloadsDir); os.IsNotExist(err) {
				return fmt.Errorf("downloads folder does not exist: %s", cfg.DownloadsDir)
			}

			cfg.Storage.Backend = ask("Storage backend (file, sqlite, postgres)", cfg.Storage.Backend)

			if cfg.Storage.Backend == "postgres" {
				fmt.Println("\nDatabase Configuration:")
				pg := &config.DatabaseConfig{}
				pg.Host = ask("  Host", "")

				port, err := strconv.Atoi(ask("  Port", "5432"))
				if err != nil {
					return fmt.Errorf("invalid port: %w", err)
				}
				pg.Port = port
				pg.User = ask("  User", "")
				pg.Password = "${THREADNOTES_DB_PASSWORD}"
				pg.Database = ask("  Database name", "")
				if pg.Database == "" {
					return fmt.Errorf("database name is required")
				}
				pg.Schema = config.SanitizeIdentifier(ask("  Schema name", "threadnotes"))
				pg.SSLMode = ask("  SSL mode", "require")
				cfg.Storage.Postgres = pg
			}

			freq, err := strconv.Atoi(ask("Auto-sync frequency in minutes", strconv.Itoa(cfg.Sync.FrequencyMinutes)))
			if err != nil {
				return fmt.Errorf("invalid frequency: %w", err)
			}
			cfg.Sync.FrequencyMinutes = freq
			cfg.Sync.ResumeOnStart = strings.HasPrefix(strings.ToLower(ask("Resume auto-sync when the daemon starts? (y/n)", "n")), "y")

			if err := config.Validate(cfg); err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}

			configDir, err := config.GetStateDir()
			if err != nil {
				return err
			}
			configPath := filepath.Join(configDir, "config.yaml")

			if err := os.WriteFile(configPath, data, 0600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Printf("\nConfig file written to: %s\n", configPath)
			if cfg.Storage.Backend == "postgres" {
				fmt.Printf("\nIMPORTANT: Set the THREADNOTES_DB_PASSWORD environment variable.\n")
				fmt.Println("To run migrations, run: threadnotes migrate")
			}
			fmt.Println("To check storage, run: threadnotes status")
			fmt.Println("To serve the browser extension, run: threadnotes daemon")

			return nil
		},
	}
}

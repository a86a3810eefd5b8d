package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/threadnotes/internal/notes"
	"github.com/vonshlovens/threadnotes/internal/rpc"
	"github.com/vonshlovens/threadnotes/internal/watcher"
)

const watchDebounce = 500 * time.Millisecond

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Serve message actions over HTTP and watch the sync file",
		Long:  `Starts a long-running process that answers message actions on POST /v1/messages, runs auto-sync, and reports changes made to the sync file by anything else.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			bus := rpc.NewBus(rpc.NewDispatcher(a.store), 16)
			go bus.Run(ctx)

			server := rpc.NewHTTPServer(ctx, a.cfg.Server.Listen, rpc.NewHTTPHandler(bus))
			errCh := make(chan error, 1)
			go func() {
				slog.Info("HTTP server starting", "listen", a.cfg.Server.Listen)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			if a.cfg.Sync.ResumeOnStart {
				if _, err := a.store.ResumeAutoSync(ctx); err != nil {
					slog.Error("failed to resume auto-sync", "error", err)
				}
			}

			var w *watcher.Watcher
			if a.cfg.Sync.Watch {
				w, err = watcher.NewWatcher(a.syncFolder(), watchDebounce, []string{"**/" + notes.SyncFileName})
				if err != nil {
					return fmt.Errorf("failed to create watcher: %w", err)
				}
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				go a.monitor.Run(ctx, w.Events())
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			slog.Info("daemon started", "sync_file", a.syncFilePath(), "backend", a.cfg.Storage.Backend)
			fmt.Printf("Listening on %s. Press Ctrl+C to stop.\n", a.cfg.Server.Listen)

			saveTicker := time.NewTicker(30 * time.Second)
			defer saveTicker.Stop()

			for {
				select {
				case <-sigCh:
					slog.Info("shutting down...")
					shutdown(server, w)
					return nil

				case err := <-errCh:
					shutdown(server, w)
					return fmt.Errorf("http server failed: %w", err)

				case <-saveTicker.C:
					if err := a.state.Save(); err != nil {
						slog.Warn("failed to save sync state", "error", err)
					}
				}
			}
		},
	}
}

func shutdown(server *http.Server, w *watcher.Watcher) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown", "error", err)
	}
	if w != nil {
		w.Stop()
	}
}

func hostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Run as a browser native messaging host on stdin/stdout",
		Long:  `Answers length-prefixed message actions from the browser on stdin and writes replies to stdout until the browser closes the pipe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			bus := rpc.NewBus(rpc.NewDispatcher(a.store), 1)
			go bus.Run(ctx)

			if a.cfg.Sync.ResumeOnStart {
				if _, err := a.store.ResumeAutoSync(ctx); err != nil {
					slog.Error("failed to resume auto-sync", "error", err)
				}
			}

			slog.Debug("native messaging host started")
			return rpc.ServeNative(ctx, os.Stdin, os.Stdout, bus)
		},
	}
}

package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// EventType represents the type of file event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	case EventRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a debounced file event. Path is relative to the
// watched directory and uses forward slashes.
type FileEvent struct {
	Path      string
	EventType EventType
	Timestamp time.Time
}

// Watcher monitors the sync folder for changes to matching files
type Watcher struct {
	rootPath        string
	watcher         *fsnotify.Watcher
	debouncer       *Debouncer
	includePatterns []string
	pending         map[string]FileEvent
	mu              sync.Mutex
	output          chan FileEvent
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewWatcher creates a watcher over rootPath, creating the directory if needed.
// With no include patterns every file is reported.
func NewWatcher(rootPath string, debounce time.Duration, includePatterns []string) (*Watcher, error) {
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		rootPath:        rootPath,
		watcher:         fsWatcher,
		debouncer:       NewDebouncer(debounce),
		includePatterns: includePatterns,
		pending:         make(map[string]FileEvent),
		output:          make(chan FileEvent, 16),
		stopCh:          make(chan struct{}),
	}, nil
}

// Start begins watching the root directory
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.rootPath); err != nil {
		return err
	}

	go w.processEvents(ctx)

	slog.Info("watcher started",
		"path", w.rootPath,
		"include_patterns", len(w.includePatterns))

	return nil
}

// Events returns the channel of debounced file events
func (w *Watcher) Events() <-chan FileEvent {
	return w.output
}

// Stop stops the watcher and drops pending events
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debouncer.Stop()
		err = w.watcher.Close()
	})
	return err
}

// Flush emits all pending debounced events now
func (w *Watcher) Flush() {
	w.debouncer.Flush()
}

// processEvents handles fsnotify events
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			relPath, err := filepath.Rel(w.rootPath, event.Name)
			if err != nil {
				continue
			}
			relPath = filepath.ToSlash(relPath)

			if !w.shouldInclude(relPath) {
				continue
			}

			w.handleEvent(event, relPath)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

// handleEvent maps an fsnotify event onto a debounced FileEvent
func (w *Watcher) handleEvent(event fsnotify.Event, relPath string) {
	switch {
	case event.Has(fsnotify.Create):
		w.add(relPath, EventCreate)
	case event.Has(fsnotify.Write):
		w.add(relPath, EventModify)
	case event.Has(fsnotify.Remove):
		w.add(relPath, EventDelete)
	case event.Has(fsnotify.Rename):
		// Atomic replacement shows up as a rename of the old inode; the
		// create for the new file follows.
		w.add(relPath, EventDelete)
	case event.Has(fsnotify.Chmod):
		// Ignore chmod events
	}
}

// add coalesces an event for path and (re)arms its debounce timer
func (w *Watcher) add(path string, eventType EventType) {
	w.mu.Lock()
	now := time.Now()
	if prev, exists := w.pending[path]; exists {
		prev.EventType = coalesce(prev.EventType, eventType)
		prev.Timestamp = now
		w.pending[path] = prev
	} else {
		w.pending[path] = FileEvent{Path: path, EventType: eventType, Timestamp: now}
	}
	w.mu.Unlock()

	w.debouncer.Schedule(path, func() { w.emit(path) })
}

// coalesce folds a new event type into a pending one.
// A later create or write means the file exists again, so it overrides a
// pending delete; create followed by modify stays a create.
func coalesce(pending, next EventType) EventType {
	switch {
	case next == EventDelete:
		return EventDelete
	case pending == EventDelete:
		return EventCreate
	case pending == EventCreate && next == EventModify:
		return EventCreate
	default:
		return next
	}
}

// emit sends the pending event for path to the output channel
func (w *Watcher) emit(path string) {
	w.mu.Lock()
	event, exists := w.pending[path]
	if exists {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if exists {
		select {
		case w.output <- event:
		case <-w.stopCh:
		}
	}
}

// shouldInclude checks if a path matches include patterns (or returns true if no patterns)
func (w *Watcher) shouldInclude(relPath string) bool {
	if len(w.includePatterns) == 0 {
		return true
	}

	for _, pattern := range w.includePatterns {
		matched, err := doublestar.Match(pattern, relPath)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

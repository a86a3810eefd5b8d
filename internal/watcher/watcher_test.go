package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCoalesce(t *testing.T) {
	tests := []struct {
		pending, next, want EventType
	}{
		{EventCreate, EventModify, EventCreate},
		{EventModify, EventModify, EventModify},
		{EventCreate, EventDelete, EventDelete},
		{EventModify, EventDelete, EventDelete},
		{EventDelete, EventCreate, EventCreate},
		{EventDelete, EventModify, EventCreate},
	}

	for _, tt := range tests {
		if got := coalesce(tt.pending, tt.next); got != tt.want {
			t.Errorf("coalesce(%v, %v) = %v, want %v", tt.pending, tt.next, got, tt.want)
		}
	}
}

func TestWatcher_ShouldInclude(t *testing.T) {
	w := &Watcher{includePatterns: []string{"**/email-notes-sync.json"}}

	if !w.shouldInclude("email-notes-sync.json") {
		t.Error("expected sync file at root to match")
	}
	if w.shouldInclude("email-notes-backup-2024-01-15-10-30-00.json") {
		t.Error("backup files should not match")
	}

	all := &Watcher{}
	if !all.shouldInclude("anything.txt") {
		t.Error("no patterns should include everything")
	}
}

func TestWatcher_ReportsWrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "EmailNotes", "EmailNotes")

	w, err := NewWatcher(dir, 50*time.Millisecond, []string{"**/email-notes-sync.json"})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	target := filepath.Join(dir, "email-notes-sync.json")
	if err := os.WriteFile(target, []byte(`{"version":"2.0.0"}`), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Path != "email-notes-sync.json" {
			t.Errorf("expected sync file event, got %q", event.Path)
		}
		if event.EventType != EventCreate {
			t.Errorf("expected CREATE (create+write coalesced), got %v", event.EventType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case event := <-w.Events():
		t.Errorf("unexpected extra event %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

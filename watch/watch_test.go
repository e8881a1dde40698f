package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orizon-lang/pstore/watch"
)

func TestWatchReportsWriteToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.pst")

	if err := os.WriteFile(path, []byte("header"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	w, err := watch.Watch(path)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("new-header"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case ev := <-w.Events():
		if ev.Path != path {
			t.Fatalf("event path mismatch: got %q want %q", ev.Path, path)
		}
	case err := <-w.Errors():
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a commit event")
	}
}

func TestWatchRejectsMissingFile(t *testing.T) {
	dir := t.TempDir()

	if _, err := watch.Watch(filepath.Join(dir, "does-not-exist.pst")); err == nil {
		t.Fatalf("expected Watch to fail for a nonexistent file")
	}
}

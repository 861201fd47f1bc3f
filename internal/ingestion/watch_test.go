package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// runWatcher starts w and returns a channel that receives one value per
// onChange call.
func runWatcher(t *testing.T, w *Watcher) <-chan struct{} {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	calls := make(chan struct{}, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(context.Context) error {
			calls <- struct{}{}
			return nil
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return calls
}

func TestWatcher_DirectoryChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	calls := runWatcher(t, w)

	writeFile(t, filepath.Join(dir, "a.md"), "# A")
	writeFile(t, filepath.Join(dir, "b.md"), "# B")

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	excluded := filepath.Join(dir, "chunks.json")
	w, err := NewWatcher(dir, 20*time.Millisecond, []string{excluded}, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	calls := runWatcher(t, w)

	writeFile(t, filepath.Join(dir, "scratch.tmp"), "x")
	writeFile(t, filepath.Join(dir, ".swap.md"), "x")
	writeFile(t, excluded, "[]")

	select {
	case <-calls:
		t.Fatal("unexpected notification for ignored files")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_SingleFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	target := filepath.Join(dir, "dataset.json")
	writeFile(t, target, "[]")

	w, err := NewWatcher(target, 50*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	calls := runWatcher(t, w)

	if err := os.WriteFile(target, []byte(`["updated"]`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification for the watched file")
	}
}

func TestNewWatcher_MissingPath(t *testing.T) {
	t.Parallel()
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "nope"), 0, nil, nil); err == nil {
		t.Error("expected error for a missing path")
	}
}

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w, err := New(Config{
		LibraryDir:     dir,
		Extensions:     []string{".md", ".txt"},
		DebounceWindow: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func waitForNudge(t *testing.T, w *Watcher, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-w.Nudge():
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestWatcher_NudgesOnNewFile(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte("# hi"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if !waitForNudge(t, w, 2*time.Second) {
		t.Fatal("no nudge after new library file")
	}
}

func TestWatcher_CoalescesWriteBurst(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	path := filepath.Join(dir, "notes.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("draft"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if !waitForNudge(t, w, 2*time.Second) {
		t.Fatal("no nudge after write burst")
	}

	// The burst settles into a single nudge; the channel should be
	// empty again shortly after.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-w.Nudge():
		t.Error("second nudge for a single settled file")
	default:
	}
}

func TestWatcher_IgnoresNonCandidates(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	files := []string{"draft.md.swp", "#report.md#", "backup.md~", "image.png", "partial.md.part"}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}

	if waitForNudge(t, w, 200*time.Millisecond) {
		t.Fatal("nudge for non-candidate files")
	}
}

func TestWatcher_RemoveBeforeSettleCancelsNudge(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{
		LibraryDir:     dir,
		Extensions:     []string{".md"},
		DebounceWindow: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })

	path := filepath.Join(dir, "transient.md")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if waitForNudge(t, w, 500*time.Millisecond) {
		t.Fatal("nudge for a file that vanished before settling")
	}
}

func TestWatcher_StartFailsOnMissingDir(t *testing.T) {
	w, err := New(Config{LibraryDir: filepath.Join(t.TempDir(), "absent")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error for missing directory")
	}
	_ = w.Stop()
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if w.Stats().IsRunning {
		t.Error("stats report running after Stop")
	}
}

func TestDebouncer_FiresOncePerQuietPeriod(t *testing.T) {
	var fires atomic.Int64
	d := newDebouncer(20*time.Millisecond, func(string) { fires.Add(1) })
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Touch("/lib/a.md")
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Errorf("fires = %d, want 1", got)
	}
	if got := d.PendingCount(); got != 0 {
		t.Errorf("PendingCount() = %d, want 0", got)
	}
}

func TestDebouncer_TracksPathsIndependently(t *testing.T) {
	var fires atomic.Int64
	d := newDebouncer(20*time.Millisecond, func(string) { fires.Add(1) })
	defer d.Stop()

	d.Touch("/lib/a.md")
	d.Touch("/lib/b.md")

	time.Sleep(100 * time.Millisecond)
	if got := fires.Load(); got != 2 {
		t.Errorf("fires = %d, want 2", got)
	}
}

func TestDebouncer_CancelDropsPending(t *testing.T) {
	var fires atomic.Int64
	d := newDebouncer(20*time.Millisecond, func(string) { fires.Add(1) })
	defer d.Stop()

	d.Touch("/lib/a.md")
	d.Cancel("/lib/a.md")

	time.Sleep(100 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Errorf("fires = %d after cancel, want 0", got)
	}
}

func TestDebouncer_StopSilencesTimers(t *testing.T) {
	var fires atomic.Int64
	d := newDebouncer(10*time.Millisecond, func(string) { fires.Add(1) })

	d.Touch("/lib/a.md")
	d.Stop()
	d.Touch("/lib/b.md")

	time.Sleep(50 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Errorf("fires = %d after Stop, want 0", got)
	}
}

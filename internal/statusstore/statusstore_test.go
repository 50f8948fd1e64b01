package statusstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "status.db")
	store, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestAdd_New(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	trace, inserted, err := store.Add(ctx, "report.pdf", "/library/report.pdf", StatusQueued, "trace-1")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !inserted {
		t.Error("Add() inserted = false, want true for new document")
	}
	if trace != "trace-1" {
		t.Errorf("Add() trace = %q, want %q", trace, "trace-1")
	}

	status, err := store.GetStatus(ctx, "/library/report.pdf")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status != StatusQueued {
		t.Errorf("GetStatus() = %q, want %q", status, StatusQueued)
	}
}

func TestAdd_ConflictReturnsStoredTrace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Add(ctx, "report.pdf", "/library/report.pdf", StatusQueued, "trace-1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	trace, inserted, err := store.Add(ctx, "report.pdf", "/library/report.pdf", StatusQueued, "trace-2")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if inserted {
		t.Error("Add() inserted = true on conflict, want false")
	}
	if trace != "trace-1" {
		t.Errorf("Add() trace = %q, want stored %q", trace, "trace-1")
	}
}

func TestUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Add(ctx, "a.md", "/library/a.md", StatusQueued, "t1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	msg := "conversion failed"
	if err := store.Update(ctx, "/library/a.md", StatusError, &msg); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rec, err := store.Get(ctx, "/library/a.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusError {
		t.Errorf("Status = %q, want %q", rec.Status, StatusError)
	}
	if rec.ErrorMessage == nil || *rec.ErrorMessage != msg {
		t.Errorf("ErrorMessage = %v, want %q", rec.ErrorMessage, msg)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Update(context.Background(), "/library/missing.md", StatusProcessing, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateByTrace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Add(ctx, "a.md", "/library/a.md", StatusQueued, "t1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	matched, err := store.UpdateByTrace(ctx, "t1", StatusProcessed, nil)
	if err != nil {
		t.Fatalf("UpdateByTrace() error = %v", err)
	}
	if !matched {
		t.Error("UpdateByTrace() matched = false, want true")
	}

	status, err := store.GetStatus(ctx, "/library/a.md")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status != StatusProcessed {
		t.Errorf("GetStatus() = %q, want %q", status, StatusProcessed)
	}
}

func TestUpdateByTrace_StaleTraceNoMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Add(ctx, "a.md", "/library/a.md", StatusProcessing, "t1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// Reclaim mints a fresh trace; the old attempt's update must miss.
	if _, err := store.Reclaim(ctx, "/library/a.md", "t2"); err != nil {
		t.Fatalf("Reclaim() error = %v", err)
	}

	matched, err := store.UpdateByTrace(ctx, "t1", StatusProcessed, nil)
	if err != nil {
		t.Fatalf("UpdateByTrace() error = %v", err)
	}
	if matched {
		t.Error("UpdateByTrace() matched = true for superseded trace, want false")
	}

	status, err := store.GetStatus(ctx, "/library/a.md")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status != StatusQueued {
		t.Errorf("GetStatus() = %q, want %q after reclaim", status, StatusQueued)
	}
}

func TestGetStatus_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetStatus(context.Background(), "/library/missing.md")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetStatus() error = %v, want ErrNotFound", err)
	}
}

func TestList_FilterByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []struct {
		path   string
		status Status
	}{
		{"/library/a.md", StatusQueued},
		{"/library/b.md", StatusProcessed},
		{"/library/c.md", StatusQueued},
	}
	for i, d := range docs {
		if _, _, err := store.Add(ctx, filepath.Base(d.path), d.path, d.status, "t"+string(rune('1'+i))); err != nil {
			t.Fatalf("Add(%s) error = %v", d.path, err)
		}
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(all) returned %d records, want 3", len(all))
	}

	queued, err := store.List(ctx, StatusQueued)
	if err != nil {
		t.Fatalf("List(queued) error = %v", err)
	}
	if len(queued) != 2 {
		t.Errorf("List(queued) returned %d records, want 2", len(queued))
	}
	for _, rec := range queued {
		if rec.Status != StatusQueued {
			t.Errorf("List(queued) returned record with status %q", rec.Status)
		}
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Add(ctx, "a.md", "/library/a.md", StatusQueued, "t1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, _, err := store.Add(ctx, "b.md", "/library/b.md", StatusProcessed, "t2"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, _, err := store.Add(ctx, "c.md", "/library/c.md", StatusProcessed, "t3"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Stats().Total = %d, want 3", stats.Total)
	}
	if stats.ByStatus[StatusQueued] != 1 {
		t.Errorf("Stats().ByStatus[queued] = %d, want 1", stats.ByStatus[StatusQueued])
	}
	if stats.ByStatus[StatusProcessed] != 2 {
		t.Errorf("Stats().ByStatus[processed] = %d, want 2", stats.ByStatus[StatusProcessed])
	}
}

func TestReclaim_GuardedByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Add(ctx, "a.md", "/library/a.md", StatusProcessing, "t1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ok, err := store.Reclaim(ctx, "/library/a.md", "t2")
	if err != nil {
		t.Fatalf("Reclaim() error = %v", err)
	}
	if !ok {
		t.Fatal("Reclaim() = false for processing row, want true")
	}

	rec, err := store.Get(ctx, "/library/a.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusQueued {
		t.Errorf("Status = %q after reclaim, want %q", rec.Status, StatusQueued)
	}
	if rec.TraceID != "t2" {
		t.Errorf("TraceID = %q after reclaim, want %q", rec.TraceID, "t2")
	}
	if rec.ErrorMessage != nil {
		t.Errorf("ErrorMessage = %v after reclaim, want nil", rec.ErrorMessage)
	}

	// Second reclaim must miss: the row is no longer processing.
	ok, err = store.Reclaim(ctx, "/library/a.md", "t3")
	if err != nil {
		t.Fatalf("Reclaim() error = %v", err)
	}
	if ok {
		t.Error("Reclaim() = true for queued row, want false")
	}
}

func TestRequeue_OnlyFromError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Add(ctx, "a.md", "/library/a.md", StatusQueued, "t1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ok, err := store.Requeue(ctx, "/library/a.md", "t2")
	if err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	if ok {
		t.Error("Requeue() = true for queued row, want false")
	}

	msg := "embedder unavailable"
	if err := store.Update(ctx, "/library/a.md", StatusError, &msg); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	ok, err = store.Requeue(ctx, "/library/a.md", "t2")
	if err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	if !ok {
		t.Fatal("Requeue() = false for errored row, want true")
	}

	rec, err := store.Get(ctx, "/library/a.md")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusQueued || rec.TraceID != "t2" || rec.ErrorMessage != nil {
		t.Errorf("record after requeue = %+v, want queued/t2/no error", rec)
	}
}

func TestFlush(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Add(ctx, "a.md", "/library/a.md", StatusQueued, "t1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Stats().Total = %d after flush, want 0", stats.Total)
	}
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		status   Status
		valid    bool
		terminal bool
	}{
		{StatusQueued, true, false},
		{StatusProcessing, true, false},
		{StatusProcessed, true, true},
		{StatusError, true, true},
		{Status("bogus"), false, false},
	}

	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.valid {
			t.Errorf("Status(%q).Valid() = %v, want %v", tt.status, got, tt.valid)
		}
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("Status(%q).Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

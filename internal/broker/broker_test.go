package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	b := NewRedisBroker(WithConfig(Config{
		Addr:       mr.Addr(),
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	}))

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		_ = b.Stop(context.Background())
	})

	return b, mr
}

func TestStart_ConnectFailure(t *testing.T) {
	b := NewRedisBroker(WithConfig(Config{
		Addr:       "localhost:1",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}))

	if err := b.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error for unreachable broker")
	}
	if b.IsConnected() {
		t.Error("IsConnected() = true after failed Start")
	}
}

func TestPushPop_FIFO(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if err := b.Push(ctx, "jobs", []byte("first")); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := b.Push(ctx, "jobs", []byte("second")); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	got, err := b.PopBlocking(ctx, "jobs", time.Second)
	if err != nil {
		t.Fatalf("PopBlocking() error = %v", err)
	}
	if string(got) != "first" {
		t.Errorf("PopBlocking() = %q, want %q", got, "first")
	}

	got, err = b.PopBlocking(ctx, "jobs", time.Second)
	if err != nil {
		t.Fatalf("PopBlocking() error = %v", err)
	}
	if string(got) != "second" {
		t.Errorf("PopBlocking() = %q, want %q", got, "second")
	}
}

func TestPopBlocking_Timeout(t *testing.T) {
	b, _ := newTestBroker(t)

	_, err := b.PopBlocking(context.Background(), "empty", 100*time.Millisecond)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("PopBlocking() error = %v, want ErrEmpty", err)
	}
}

func TestDepth(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	n, err := b.Depth(ctx, "jobs")
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Depth() = %d, want 0", n)
	}

	for i := 0; i < 3; i++ {
		if err := b.Push(ctx, "jobs", []byte("x")); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	n, err = b.Depth(ctx, "jobs")
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Depth() = %d, want 3", n)
	}
}

func TestAcquireLock_Exclusive(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	ok, err := b.AcquireLock(ctx, "lock:extraction:report.pdf", "trace-1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if !ok {
		t.Fatal("AcquireLock() = false, want true on first acquire")
	}

	ok, err = b.AcquireLock(ctx, "lock:extraction:report.pdf", "trace-2", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if ok {
		t.Error("AcquireLock() = true while lock held, want false")
	}

	exists, err := b.LockExists(ctx, "lock:extraction:report.pdf")
	if err != nil {
		t.Fatalf("LockExists() error = %v", err)
	}
	if !exists {
		t.Error("LockExists() = false while lock held")
	}
}

func TestReleaseLock(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if _, err := b.AcquireLock(ctx, "lock:extraction:a.md", "t1", time.Minute); err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if err := b.ReleaseLock(ctx, "lock:extraction:a.md"); err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}

	exists, err := b.LockExists(ctx, "lock:extraction:a.md")
	if err != nil {
		t.Fatalf("LockExists() error = %v", err)
	}
	if exists {
		t.Error("LockExists() = true after release")
	}

	ok, err := b.AcquireLock(ctx, "lock:extraction:a.md", "t2", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if !ok {
		t.Error("AcquireLock() = false after release, want true")
	}
}

func TestLockExpiry(t *testing.T) {
	b, mr := newTestBroker(t)
	ctx := context.Background()

	if _, err := b.AcquireLock(ctx, "lock:extraction:b.md", "t1", 5*time.Minute); err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}

	mr.FastForward(6 * time.Minute)

	exists, err := b.LockExists(ctx, "lock:extraction:b.md")
	if err != nil {
		t.Fatalf("LockExists() error = %v", err)
	}
	if exists {
		t.Error("LockExists() = true after TTL expiry")
	}
}

func TestOperations_NotConnected(t *testing.T) {
	b := NewRedisBroker()
	ctx := context.Background()

	if err := b.Push(ctx, "q", []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Push() error = %v, want ErrNotConnected", err)
	}
	if _, err := b.PopBlocking(ctx, "q", time.Second); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PopBlocking() error = %v, want ErrNotConnected", err)
	}
	if _, err := b.Depth(ctx, "q"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Depth() error = %v, want ErrNotConnected", err)
	}
}

func TestDeadLetterQueue(t *testing.T) {
	if got := DeadLetterQueue("extraction_jobs"); got != "extraction_jobs_dlq" {
		t.Errorf("DeadLetterQueue() = %q, want %q", got, "extraction_jobs_dlq")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if err := b.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := b.Stop(ctx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if b.IsConnected() {
		t.Error("IsConnected() = true after Stop")
	}
}

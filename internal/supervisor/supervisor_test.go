package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPIDFile_WriteReadRemove(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "run", "docfoundry.pid"))

	if err := pf.Write(); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	pid, err := pf.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("Read() = %d, want %d", pid, os.Getpid())
	}

	if err := pf.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := pf.Remove(); err != nil {
		t.Fatalf("Remove() on missing file error = %v", err)
	}
}

func TestPIDFile_CheckAndClaim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docfoundry.pid")
	pf := NewPIDFile(path)

	if err := pf.CheckAndClaim(); err != nil {
		t.Fatalf("CheckAndClaim() error = %v", err)
	}

	// Our own live PID occupies the file.
	if err := pf.CheckAndClaim(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("CheckAndClaim() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestPIDFile_ClaimsStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docfoundry.pid")

	// A PID far beyond pid_max cannot belong to a live process.
	if err := os.WriteFile(path, []byte("999999999"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	pf := NewPIDFile(path)
	stale, err := pf.IsStale()
	if err != nil {
		t.Fatalf("IsStale() error = %v", err)
	}
	if !stale {
		t.Fatal("IsStale() = false for dead PID")
	}

	if err := pf.CheckAndClaim(); err != nil {
		t.Fatalf("CheckAndClaim() over stale file error = %v", err)
	}
	pid, err := pf.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("claimed PID = %d, want %d", pid, os.Getpid())
	}
}

func TestChildSpec_Name(t *testing.T) {
	tests := []struct {
		spec ChildSpec
		want string
	}{
		{ChildSpec{Stage: "manager"}, "manager"},
		{ChildSpec{Stage: "extraction", WorkerID: "extraction-worker-1"}, "extraction/extraction-worker-1"},
	}
	for _, tt := range tests {
		if got := tt.spec.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}

func TestSupervisor_LogPathLayout(t *testing.T) {
	s := &Supervisor{cfg: Config{LogDir: "/var/log/docfoundry"}}
	date := time.Now().Format("20060102")

	got := s.logPath(ChildSpec{Stage: "manager"})
	want := filepath.Join("/var/log/docfoundry", "manager_"+date+".log")
	if got != want {
		t.Errorf("logPath(manager) = %q, want %q", got, want)
	}

	got = s.logPath(ChildSpec{Stage: "extraction", WorkerID: "extraction-worker-0"})
	want = filepath.Join("/var/log/docfoundry", "extraction_extraction-worker-0_"+date+".log")
	if got != want {
		t.Errorf("logPath(worker) = %q, want %q", got, want)
	}
}

func TestSupervisor_MetricsAddrAssignment(t *testing.T) {
	s := &Supervisor{cfg: Config{MetricsEnabled: true, MetricsHost: "127.0.0.1", MetricsBasePort: 9300}}
	if got := s.metricsAddrFor(0); got != "127.0.0.1:9301" {
		t.Errorf("metricsAddrFor(0) = %q", got)
	}
	if got := s.metricsAddrFor(3); got != "127.0.0.1:9304" {
		t.Errorf("metricsAddrFor(3) = %q", got)
	}

	off := &Supervisor{cfg: Config{}}
	if got := off.metricsAddrFor(0); got != "" {
		t.Errorf("metricsAddrFor with metrics disabled = %q, want empty", got)
	}
}

func TestSupervisor_RunAndShutdown(t *testing.T) {
	dir := t.TempDir()
	specs := []ChildSpec{
		{Stage: "manager", Command: "/bin/sh", Args: []string{"-c", "sleep 30"}, Restart: true},
		{Stage: "extraction", WorkerID: "extraction-worker-0", Command: "/bin/sh", Args: []string{"-c", "sleep 30"}, Restart: true},
	}

	s, err := New(Config{
		LogDir:      filepath.Join(dir, "logs"),
		PIDFilePath: filepath.Join(dir, "docfoundry.pid"),
		GracePeriod: 5 * time.Second,
	}, specs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	// Give children time to start, then tear down.
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if _, err := os.Stat(filepath.Join(dir, "docfoundry.pid")); !os.IsNotExist(err) {
		t.Error("PID file not removed after shutdown")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("ReadDir(logs) error = %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	joined := strings.Join(names, " ")
	if !strings.Contains(joined, "manager_") || !strings.Contains(joined, "extraction_extraction-worker-0_") {
		t.Errorf("expected per-child log files, got %v", names)
	}
}

func TestSupervisor_RestartsCrashedChild(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "starts")

	// Each start appends a line; the child then blocks.
	script := "echo started >> " + marker + " && sleep 30"
	specs := []ChildSpec{
		{Stage: "chunking", WorkerID: "chunking-worker-0", Command: "/bin/sh", Args: []string{"-c", script}, Restart: true},
	}

	s, err := New(Config{
		LogDir:      filepath.Join(dir, "logs"),
		GracePeriod: 5 * time.Second,
	}, specs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	// Wait for first start, then kill the child and expect a respawn.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if data, err := os.ReadFile(marker); err == nil && strings.Count(string(data), "started") >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("child never started")
		}
		time.Sleep(20 * time.Millisecond)
	}

	s.mu.Lock()
	c := s.children["chunking/chunking-worker-0"]
	pid := c.cmd.Process.Pid
	s.mu.Unlock()
	if err := c.cmd.Process.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}

	deadline = time.Now().Add(10 * time.Second)
	for {
		if data, err := os.ReadFile(marker); err == nil && strings.Count(string(data), "started") >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("child was not restarted after crash")
		}
		time.Sleep(50 * time.Millisecond)
	}

	s.mu.Lock()
	newPid := s.children["chunking/chunking-worker-0"].cmd.Process.Pid
	s.mu.Unlock()
	if newPid == pid {
		t.Errorf("restarted child kept pid %d", pid)
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestSupervisor_DoesNotRestartBroker(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "starts")
	script := "echo started >> " + marker + " && exit 1"

	specs := []ChildSpec{
		{Stage: "broker", Command: "/bin/sh", Args: []string{"-c", script}, Restart: false},
	}

	s, err := New(Config{LogDir: filepath.Join(dir, "logs"), GracePeriod: time.Second}, specs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	// The broker exits immediately; give any (incorrect) restart time
	// to land before counting.
	time.Sleep(2 * time.Second)

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("ReadFile(marker) error = %v", err)
	}
	if got := strings.Count(string(data), "started"); got != 1 {
		t.Errorf("broker started %d times, want 1", got)
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning indicates that another supervisor holds the PID file.
var ErrAlreadyRunning = errors.New("supervisor already running")

// PIDFile guards against two supervisors managing the same deployment.
type PIDFile struct {
	path string
}

// NewPIDFile creates a PIDFile at the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the path to the PID file.
func (p *PIDFile) Path() string {
	return p.path
}

// Write writes the current process's PID to the file atomically via a
// temp file and rename.
func (p *PIDFile) Write() error {
	pidStr := strconv.Itoa(os.Getpid())

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create PID file directory; %w", err)
	}

	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(pidStr), 0o644); err != nil {
		return fmt.Errorf("failed to write temporary PID file; %w", err)
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename PID file; %w", err)
	}

	return nil
}

// Read reads and returns the PID from the file.
func (p *PIDFile) Read() (int, error) {
	content, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file; %w", err)
	}

	pidStr := strings.TrimSpace(string(content))
	if pidStr == "" {
		return 0, errors.New("empty PID file")
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file; %w", err)
	}

	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID %d; must be positive", pid)
	}

	return pid, nil
}

// Remove removes the PID file if it exists.
func (p *PIDFile) Remove() error {
	err := os.Remove(p.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file; %w", err)
	}
	return nil
}

// IsStale reports whether the PID file references a process that is no
// longer running. A missing file is not stale.
func (p *PIDFile) IsStale() (bool, error) {
	pid, err := p.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		if _, statErr := os.Stat(p.path); os.IsNotExist(statErr) {
			return false, nil
		}
		return false, fmt.Errorf("PID file exists but unreadable; %w", err)
	}

	// Signal 0 checks existence without delivering anything.
	err = syscall.Kill(pid, 0)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return true, nil
		}
		if errors.Is(err, syscall.EPERM) {
			// The process exists under another user.
			return false, nil
		}
		return false, fmt.Errorf("failed to check process; %w", err)
	}

	return false, nil
}

// CheckAndClaim claims the PID file for this process. Stale files left
// by a crashed supervisor are replaced; a live owner yields
// ErrAlreadyRunning.
func (p *PIDFile) CheckAndClaim() error {
	if _, err := os.Stat(p.path); os.IsNotExist(err) {
		return p.Write()
	}

	stale, err := p.IsStale()
	if err != nil {
		return fmt.Errorf("failed to check if PID file is stale; %w", err)
	}

	if stale {
		if err := p.Remove(); err != nil {
			return fmt.Errorf("failed to remove stale PID file; %w", err)
		}
		return p.Write()
	}

	return ErrAlreadyRunning
}

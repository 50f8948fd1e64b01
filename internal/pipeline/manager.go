package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docfoundry/docfoundry/internal/metrics"
	"github.com/docfoundry/docfoundry/internal/statusstore"
)

// scanErrorBackoff is the delay before the next scan after a scan-level
// failure.
const scanErrorBackoff = 5 * time.Second

// ManagerConfig configures the scan-claim-dispatch loop.
type ManagerConfig struct {
	LibraryDir   string
	Extensions   []string
	ScanInterval time.Duration
	LockTTL      time.Duration
	// StaleAfter is how long a processing record may go without a status
	// update before it is considered abandoned. Zero inherits LockTTL.
	StaleAfter time.Duration
	Queues     Queues

	// Nudge triggers an early scan when the watcher sees library
	// activity. Optional.
	Nudge <-chan struct{}
}

// Manager owns the library scan loop: it discovers eligible files,
// claims them under the extraction lock, registers them in the status
// store, and dispatches extract jobs.
type Manager struct {
	deps Deps
	cfg  ManagerConfig
	exts map[string]bool
}

// NewManager creates a manager.
func NewManager(deps Deps, cfg ManagerConfig) *Manager {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = cfg.LockTTL
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = true
	}

	return &Manager{deps: deps, cfg: cfg, exts: exts}
}

// Run scans the library until the context is cancelled. Scan failures
// are logged and retried after a short backoff; they never stop the loop.
func (m *Manager) Run(ctx context.Context) error {
	logger := m.deps.logger().With(
		"manager_id", ManagerID,
		"stage", StageManager,
	)
	logger.Info("manager started",
		"trace_id", "-",
		"event", "manager_start",
		"library_dir", m.cfg.LibraryDir,
		"scan_interval", m.cfg.ScanInterval)

	for {
		delay := m.cfg.ScanInterval

		start := time.Now()
		if err := m.scan(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("scan failed",
				"trace_id", "-",
				"event", "scan_error",
				"error", err)
			delay = scanErrorBackoff
		}
		metrics.ScanDuration.Observe(time.Since(start).Seconds())

		select {
		case <-ctx.Done():
			logger.Info("manager stopping", "trace_id", "-", "event", "manager_stop")
			return nil
		case <-time.After(delay):
		case <-m.cfg.Nudge:
			logger.Debug("scan nudged by watcher", "trace_id", "-", "event", "scan_nudge")
		}
	}

	logger.Info("manager stopping", "trace_id", "-", "event", "manager_stop")
	return nil
}

// scan walks the library once and dispatches every claimable file.
func (m *Manager) scan(ctx context.Context) error {
	entries, err := os.ReadDir(m.cfg.LibraryDir)
	if err != nil {
		return fmt.Errorf("failed to read library directory; %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}
		if !m.exts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		path := filepath.Join(m.cfg.LibraryDir, entry.Name())
		if err := m.processFile(ctx, path, entry.Name()); err != nil {
			m.deps.logger().Warn("file dispatch failed",
				"trace_id", "-",
				"manager_id", ManagerID,
				"stage", StageManager,
				"event", "dispatch_error",
				"file", path,
				"error", err)
		}
	}

	return nil
}

// processFile applies the claim protocol to one library file.
func (m *Manager) processFile(ctx context.Context, path, filename string) error {
	logger := m.deps.logger().With(
		"manager_id", ManagerID,
		"stage", StageManager,
		"file", path,
	)
	lockKey := LockKey(filename)

	status, err := m.deps.Status.GetStatus(ctx, path)
	if err != nil && !errors.Is(err, statusstore.ErrNotFound) {
		return fmt.Errorf("failed to read status; %w", err)
	}

	if status.Terminal() {
		return nil
	}

	if status == statusstore.StatusProcessing {
		stale, err := m.isStale(ctx, path, lockKey)
		if err != nil {
			return err
		}
		if !stale {
			return nil
		}

		// The attempt was abandoned: crashed worker, expired lock.
		// Reset to queued under a fresh trace and fall through to claim.
		reclaimTrace := uuid.NewString()
		ok, err := m.deps.Status.Reclaim(ctx, path, reclaimTrace)
		if err != nil {
			return fmt.Errorf("failed to reclaim document; %w", err)
		}
		if !ok {
			return nil
		}
		metrics.DocumentsReclaimedTotal.Inc()
		logger.Info("stale document reclaimed",
			"trace_id", reclaimTrace,
			"event", "document_reclaimed")
	}

	held, err := m.deps.Broker.LockExists(ctx, lockKey)
	if err != nil {
		return fmt.Errorf("failed to check lock; %w", err)
	}
	if held {
		return nil
	}

	acquired, err := m.deps.Broker.AcquireLock(ctx, lockKey, ManagerID, m.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock; %w", err)
	}
	if !acquired {
		metrics.LockContentionTotal.Inc()
		return nil
	}

	trace := uuid.NewString()
	canonical, inserted, err := m.deps.Status.Add(ctx, filename, path, statusstore.StatusQueued, trace)
	if err != nil {
		// Claim without registration would strand the lock until TTL.
		_ = m.deps.Broker.ReleaseLock(ctx, lockKey)
		return fmt.Errorf("failed to register document; %w", err)
	}

	now := time.Now()
	job := ExtractJob{
		TraceID:      canonical,
		FilePath:     path,
		Filename:     filename,
		JobTimestamp: unixNow(now),
		JobCreated:   now.Format(time.RFC3339),
		Metadata: map[string]any{
			"source":     "master_library",
			"manager_id": ManagerID,
		},
	}
	payload, err := encodeJob(job)
	if err != nil {
		_ = m.deps.Broker.ReleaseLock(ctx, lockKey)
		return err
	}

	if err := m.deps.Broker.Push(ctx, m.cfg.Queues.Extraction, payload); err != nil {
		_ = m.deps.Broker.ReleaseLock(ctx, lockKey)
		return fmt.Errorf("failed to dispatch extract job; %w", err)
	}

	metrics.DocumentsDispatchedTotal.Inc()
	logger.Info("document dispatched",
		"trace_id", canonical,
		"event", "document_dispatched",
		"new_record", inserted)
	return nil
}

// isStale reports whether a processing record has been abandoned: its
// lock is gone and its last status update is older than the stale window.
func (m *Manager) isStale(ctx context.Context, path, lockKey string) (bool, error) {
	held, err := m.deps.Broker.LockExists(ctx, lockKey)
	if err != nil {
		return false, fmt.Errorf("failed to check lock; %w", err)
	}
	if held {
		return false, nil
	}

	rec, err := m.deps.Status.Get(ctx, path)
	if err != nil {
		return false, fmt.Errorf("failed to read status record; %w", err)
	}

	return time.Since(rec.ProcessedDate) >= m.cfg.StaleAfter, nil
}

// Package watcher observes the flat library directory and nudges the
// ingest manager when a candidate file settles. The nudge channel
// carries no payload; the manager rescans the whole directory, so a
// burst of changes collapses into a single early scan.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow is how long a file must stay quiet before it
// triggers a nudge. Copies into the library arrive as a create followed
// by a tail of writes.
const DefaultDebounceWindow = 500 * time.Millisecond

// Config holds the watch target and filtering rules.
type Config struct {
	LibraryDir     string
	Extensions     []string
	DebounceWindow time.Duration
}

// Stats contains counters describing watcher activity.
type Stats struct {
	EventsReceived int64
	EventsIgnored  int64
	NudgesSent     int64
	Errors         int64
	IsRunning      bool
}

// Option configures the Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// Watcher wraps an fsnotify watch on the library directory.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	cfg       Config
	exts      map[string]bool
	debounce  *debouncer
	logger    *slog.Logger

	nudge chan struct{}

	mu       sync.Mutex
	stats    Stats
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Watcher for the configured library directory.
func New(cfg Config, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher; %w", err)
	}

	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = true
	}

	w := &Watcher{
		fsWatcher: fsw,
		cfg:       cfg,
		exts:      exts,
		logger:    slog.Default(),
		nudge:     make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.debounce = newDebouncer(cfg.DebounceWindow, w.sendNudge)

	return w, nil
}

// Nudge returns the channel the manager selects on for early scans.
func (w *Watcher) Nudge() <-chan struct{} {
	return w.nudge
}

// Start verifies the library directory, registers the watch, and
// begins processing events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stats.IsRunning = true
	w.mu.Unlock()

	info, err := os.Stat(w.cfg.LibraryDir)
	if err != nil {
		return fmt.Errorf("failed to stat library dir; %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("library path is not a directory: %s", w.cfg.LibraryDir)
	}

	if err := w.fsWatcher.Add(w.cfg.LibraryDir); err != nil {
		return fmt.Errorf("failed to watch library dir; %w", err)
	}

	w.logger.Info("watching library",
		"stage", "manager",
		"event", "watch_started",
		"path", w.cfg.LibraryDir,
		"debounce_ms", w.cfg.DebounceWindow.Milliseconds(),
	)

	go w.processEvents(ctx)

	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	var stopErr error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if !w.running {
			w.mu.Unlock()
			return
		}
		w.running = false
		w.stats.IsRunning = false
		w.mu.Unlock()

		w.debounce.Stop()

		close(w.stopCh)
		<-w.doneCh

		stopErr = w.fsWatcher.Close()
	})
	return stopErr
}

// Stats returns current watcher counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.logger.Error("fsnotify error", "stage", "manager", "event", "watch_error", "error", err)
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	w.mu.Lock()
	w.stats.EventsReceived++
	w.mu.Unlock()

	if !w.isCandidate(event.Name) {
		w.ignored()
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		// A removed file cannot be ingested; drop any pending nudge.
		w.debounce.Cancel(event.Name)
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
			// The library is flat; subdirectories are not scanned.
			w.ignored()
			return
		}
		w.debounce.Touch(event.Name)
	default:
		// Chmod-only events do not change content.
		w.ignored()
	}
}

// isCandidate reports whether a path could become an extraction job:
// right extension, not a transient editor artifact.
func (w *Watcher) isCandidate(path string) bool {
	if isEditorNoise(path) {
		return false
	}
	if len(w.exts) == 0 {
		return true
	}
	return w.exts[strings.ToLower(filepath.Ext(path))]
}

func (w *Watcher) ignored() {
	w.mu.Lock()
	w.stats.EventsIgnored++
	w.mu.Unlock()
}

// sendNudge signals the manager. The channel holds one pending nudge;
// further sends while it is full are dropped because the coming scan
// already covers them.
func (w *Watcher) sendNudge(path string) {
	select {
	case w.nudge <- struct{}{}:
		w.mu.Lock()
		w.stats.NudgesSent++
		w.mu.Unlock()
		w.logger.Debug("library change settled",
			"stage", "manager",
			"event", "scan_nudge",
			"file", filepath.Base(path),
		)
	default:
	}
}

// isEditorNoise returns true if the file is a transient editor artifact.
// These appear and disappear rapidly during editing and would churn the
// debouncer for nothing.
func isEditorNoise(path string) bool {
	name := filepath.Base(path)

	// Vim swap files
	if strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".swo") || strings.HasSuffix(name, ".swn") {
		return true
	}

	// Vim temporary file during save
	if name == "4913" {
		return true
	}

	// Emacs auto-save files
	if strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#") {
		return true
	}

	// Backup files ending with ~
	if strings.HasSuffix(name, "~") {
		return true
	}

	// Partial copies (rsync, browsers)
	if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".crdownload") || strings.HasSuffix(name, ".tmp") {
		return true
	}

	return false
}

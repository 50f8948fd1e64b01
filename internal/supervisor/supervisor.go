// Package supervisor launches and monitors the pipeline's child
// processes. Each child is a re-invocation of this binary with a stage
// subcommand (or an external redis-server); the supervisor owns their
// log files, restarts crashed children with exponential backoff, and
// tears the whole tree down on a termination signal.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/docfoundry/docfoundry/internal/metrics"
)

const (
	// DefaultGracePeriod bounds how long children get to finish their
	// in-flight job after SIGTERM.
	DefaultGracePeriod = 60 * time.Second

	restartInitialInterval = time.Second
	restartMaxInterval     = 30 * time.Second

	// stableRunReset: a child that survived this long gets a fresh
	// backoff schedule on its next crash.
	stableRunReset = 10 * time.Minute
)

// ChildSpec describes one supervised process.
type ChildSpec struct {
	// Stage is the pipeline role: manager, extraction, chunking,
	// embedding, or broker.
	Stage string

	// WorkerID distinguishes pool members. Empty for singleton stages.
	WorkerID string

	// Command overrides the supervisor's own executable. Used for the
	// external broker.
	Command string

	// Args is the argv passed to the command.
	Args []string

	// Restart controls whether the child is respawned on unexpected
	// exit. The broker never restarts.
	Restart bool
}

// Name returns the child's table key, unique per (stage, worker_id).
func (s ChildSpec) Name() string {
	if s.WorkerID == "" {
		return s.Stage
	}
	return s.Stage + "/" + s.WorkerID
}

// Config holds supervisor settings.
type Config struct {
	LogDir      string
	PIDFilePath string
	GracePeriod time.Duration

	// MetricsEnabled assigns each child a distinct --metrics-addr so
	// every process exposes its own scrape endpoint.
	MetricsEnabled  bool
	MetricsHost     string
	MetricsBasePort int
}

// Option configures the Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithExecutable overrides the self-executable used for stage children.
func WithExecutable(path string) Option {
	return func(s *Supervisor) {
		s.executable = path
	}
}

type child struct {
	spec        ChildSpec
	cmd         *exec.Cmd
	logOut      *lumberjack.Logger
	retry       *backoff.ExponentialBackOff
	startedAt   time.Time
	metricsAddr string
}

type childExit struct {
	name string
	err  error
}

// Supervisor runs a set of child processes until its context is
// cancelled.
type Supervisor struct {
	cfg        Config
	specs      []ChildSpec
	logger     *slog.Logger
	executable string

	mu       sync.Mutex
	children map[string]*child
	running  bool

	exitCh chan childExit
	wg     sync.WaitGroup
}

// New creates a Supervisor for the given child specs.
func New(cfg Config, specs []ChildSpec, opts ...Option) (*Supervisor, error) {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.MetricsHost == "" {
		cfg.MetricsHost = "127.0.0.1"
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable; %w", err)
	}

	s := &Supervisor{
		cfg:        cfg,
		specs:      specs,
		logger:     slog.Default(),
		executable: exe,
		children:   make(map[string]*child),
		exitCh:     make(chan childExit, len(specs)*2+8),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Run claims the PID file, spawns every child, and supervises until ctx
// is cancelled. It returns once all children are down.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.PIDFilePath != "" {
		pf := NewPIDFile(s.cfg.PIDFilePath)
		if err := pf.CheckAndClaim(); err != nil {
			return fmt.Errorf("failed to claim PID file; %w", err)
		}
		defer func() {
			if err := pf.Remove(); err != nil {
				s.logger.Warn("PID file cleanup failed", "error", err)
			}
		}()
	}

	if s.cfg.LogDir != "" {
		if err := os.MkdirAll(s.cfg.LogDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log dir; %w", err)
		}
	}

	s.mu.Lock()
	s.running = true
	for i, spec := range s.specs {
		if err := s.spawnLocked(spec, s.metricsAddrFor(i)); err != nil {
			s.mu.Unlock()
			s.shutdown()
			return fmt.Errorf("failed to start %s; %w", spec.Name(), err)
		}
	}
	s.mu.Unlock()

	s.logger.Info("supervisor started",
		"stage", "supervisor",
		"event", "supervisor_started",
		"children", len(s.specs),
	)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case exit := <-s.exitCh:
			s.handleExit(exit)
		}
	}
}

// spawnLocked starts one child. Caller holds s.mu.
func (s *Supervisor) spawnLocked(spec ChildSpec, metricsAddr string) error {
	c, ok := s.children[spec.Name()]
	if !ok {
		retry := backoff.NewExponentialBackOff()
		retry.InitialInterval = restartInitialInterval
		retry.MaxInterval = restartMaxInterval
		retry.MaxElapsedTime = 0
		retry.Reset()

		c = &child{
			spec: spec,
			logOut: &lumberjack.Logger{
				Filename:   s.logPath(spec),
				MaxSize:    50, // megabytes
				MaxBackups: 3,
				MaxAge:     14, // days
				Compress:   false,
			},
			retry:       retry,
			metricsAddr: metricsAddr,
		}
		s.children[spec.Name()] = c
	}

	command := spec.Command
	if command == "" {
		command = s.executable
	}
	args := spec.Args
	if c.metricsAddr != "" {
		args = append(append([]string{}, args...), "--metrics-addr", c.metricsAddr)
	}

	cmd := exec.Command(command, args...)
	cmd.Stdout = c.logOut
	cmd.Stderr = c.logOut
	// Own process group so signals reach grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start child process; %w", err)
	}

	c.cmd = cmd
	c.startedAt = time.Now()

	s.logger.Info("child started",
		"stage", "supervisor",
		"event", "child_started",
		"child", spec.Name(),
		"pid", cmd.Process.Pid,
	)

	name := spec.Name()
	s.wg.Add(1)
	go func() {
		err := cmd.Wait()
		s.wg.Done()
		s.exitCh <- childExit{name: name, err: err}
	}()

	return nil
}

// handleExit restarts a crashed child or records its loss.
func (s *Supervisor) handleExit(exit childExit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	c, ok := s.children[exit.name]
	if !ok {
		return
	}

	code := exitCode(exit.err)
	s.logger.Warn("child exited",
		"stage", "supervisor",
		"event", "child_exited",
		"child", exit.name,
		"exit_code", code,
	)

	if !c.spec.Restart {
		s.logger.Error("child will not be restarted",
			"stage", "supervisor",
			"event", "child_abandoned",
			"child", exit.name,
		)
		delete(s.children, exit.name)
		if err := c.logOut.Close(); err != nil {
			s.logger.Warn("child log close failed", "child", exit.name, "error", err)
		}
		return
	}

	if time.Since(c.startedAt) >= stableRunReset {
		c.retry.Reset()
	}
	delay := c.retry.NextBackOff()

	metrics.SupervisorRestartsTotal.WithLabelValues(c.spec.Stage).Inc()
	fmt.Fprintf(c.logOut, "==== %s restarted at %s ====\n", exit.name, time.Now().Format(time.RFC3339))

	s.logger.Info("child restart scheduled",
		"stage", "supervisor",
		"event", "child_restart_scheduled",
		"child", exit.name,
		"delay", delay.String(),
	)

	spec := c.spec
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.running {
			return
		}
		if err := s.spawnLocked(spec, c.metricsAddr); err != nil {
			s.logger.Error("child restart failed",
				"stage", "supervisor",
				"event", "child_restart_error",
				"child", spec.Name(),
				"error", err,
			)
			// Feed a synthetic exit so the backoff loop keeps trying.
			s.exitCh <- childExit{name: spec.Name(), err: err}
		}
	})
}

// shutdown terminates every child process group, waiting up to the
// grace period before escalating to SIGKILL.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	snapshot := make([]*child, 0, len(s.children))
	for _, c := range s.children {
		snapshot = append(snapshot, c)
	}
	s.mu.Unlock()

	s.logger.Info("shutting down children",
		"stage", "supervisor",
		"event", "shutdown_started",
		"children", len(snapshot),
		"grace", s.cfg.GracePeriod.String(),
	)

	for _, c := range snapshot {
		s.signalGroup(c, syscall.SIGTERM)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.GracePeriod):
		s.logger.Warn("grace period expired, killing stragglers",
			"stage", "supervisor",
			"event", "shutdown_force_kill",
		)
		for _, c := range snapshot {
			s.signalGroup(c, syscall.SIGKILL)
		}
		<-done
	}

	for _, c := range snapshot {
		if err := c.logOut.Close(); err != nil {
			s.logger.Warn("child log close failed", "child", c.spec.Name(), "error", err)
		}
	}

	s.logger.Info("all children stopped",
		"stage", "supervisor",
		"event", "shutdown_complete",
	)
}

// signalGroup signals the child's whole process group.
func (s *Supervisor) signalGroup(c *child, sig syscall.Signal) {
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}
	pid := c.cmd.Process.Pid
	if err := syscall.Kill(-pid, sig); err != nil && err != syscall.ESRCH {
		s.logger.Warn("failed to signal child group",
			"child", c.spec.Name(),
			"signal", sig.String(),
			"error", err,
		)
	}
}

// logPath builds the per-child log filename. Singleton stages omit the
// worker id segment.
func (s *Supervisor) logPath(spec ChildSpec) string {
	date := time.Now().Format("20060102")
	name := fmt.Sprintf("%s_%s.log", spec.Stage, date)
	if spec.WorkerID != "" {
		name = fmt.Sprintf("%s_%s_%s.log", spec.Stage, spec.WorkerID, date)
	}
	return filepath.Join(s.cfg.LogDir, name)
}

// metricsAddrFor assigns the i-th child its own scrape address.
func (s *Supervisor) metricsAddrFor(i int) string {
	if !s.cfg.MetricsEnabled || s.cfg.MetricsBasePort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", s.cfg.MetricsHost, s.cfg.MetricsBasePort+i+1)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

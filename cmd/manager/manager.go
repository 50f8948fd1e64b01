// Package manager provides the extraction manager command.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/internal/broker"
	"github.com/docfoundry/docfoundry/internal/cmdutil"
	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/metrics"
	"github.com/docfoundry/docfoundry/internal/pipeline"
	"github.com/docfoundry/docfoundry/internal/watcher"
)

// ManagerCmd runs the singleton extraction manager.
var ManagerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run the extraction manager",
	Long: "Run the extraction manager.\n\n" +
		"The manager scans the library directory on an interval, claims new " +
		"documents with a per-file lock, registers them in the status store, " +
		"and dispatches extraction jobs. Exactly one manager runs per " +
		"deployment; the claim lock makes concurrent managers safe but " +
		"redundant.",
	Example: `  # Run the manager
  docfoundry manager`,
	PreRunE: validateManager,
	RunE:    runManager,
}

var (
	managerScanInterval int
	managerLockTTL      int
)

func init() {
	ManagerCmd.Flags().IntVar(&managerScanInterval, "scan-interval", 0, "Override the library scan interval in seconds")
	ManagerCmd.Flags().IntVar(&managerLockTTL, "lock-ttl", 0, "Override the claim lock TTL in seconds")
}

func validateManager(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runManager(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config; %w", err)
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := cmdutil.OpenBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = b.Stop(ctx) }()

	status, err := cmdutil.OpenStatusStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = status.Close() }()

	deps := pipeline.Deps{
		Broker: b,
		Status: status,
		Logger: logger,
	}
	queues := cmdutil.PipelineQueues(cfg)

	var nudge <-chan struct{}
	if cfg.Ingest.WatchLibrary {
		w, err := watcher.New(watcher.Config{
			LibraryDir: cfg.Ingest.LibraryDir,
			Extensions: cfg.Ingest.Extensions,
		}, watcher.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create library watcher; %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start library watcher; %w", err)
		}
		defer func() { _ = w.Stop() }()
		nudge = w.Nudge()
	}

	startMetrics(ctx, cmd, cfg, b, queues, logger)

	scanInterval := cfg.Ingest.ScanIntervalDuration()
	if managerScanInterval > 0 {
		scanInterval = time.Duration(managerScanInterval) * time.Second
	}
	lockTTL := cfg.Ingest.LockTTLDuration()
	if managerLockTTL > 0 {
		lockTTL = time.Duration(managerLockTTL) * time.Second
	}

	m := pipeline.NewManager(deps, pipeline.ManagerConfig{
		LibraryDir:   cfg.Ingest.LibraryDir,
		Extensions:   cfg.Ingest.Extensions,
		ScanInterval: scanInterval,
		LockTTL:      lockTTL,
		StaleAfter:   cfg.Ingest.StaleAfterDuration(),
		Queues:       queues,
		Nudge:        nudge,
	})

	return m.Run(ctx)
}

// startMetrics exposes this process's metrics endpoint and the queue
// depth collector when metrics are enabled.
func startMetrics(ctx context.Context, cmd *cobra.Command, cfg *config.Config, b *broker.RedisBroker, queues pipeline.Queues, logger *slog.Logger) {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Addr
	}
	if addr == "" {
		return
	}

	metrics.SetProcessInfo(pipeline.StageManager)

	collector := metrics.NewDepthCollector(b, []string{
		queues.Extraction,
		queues.Chunking,
		queues.Embedding,
	}, 15*time.Second, logger)
	collector.Start(ctx)

	go metrics.Serve(ctx, addr, logger)
}

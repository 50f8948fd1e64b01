// Package run provides the supervisor command: it launches the
// manager, the worker pools, and optionally the broker, then monitors
// them until a termination signal.
package run

import (
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/internal/cmdutil"
	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/supervisor"
)

// RunCmd starts the full pipeline under supervision.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full ingestion pipeline under supervision",
	Long: "Run the full ingestion pipeline under supervision.\n\n" +
		"Starts the queue broker (if configured to spawn one), the extraction " +
		"manager, and the per-stage worker pools as child processes of this " +
		"supervisor. Crashed children are restarted with exponential backoff; " +
		"a termination signal shuts the whole tree down gracefully.",
	Example: `  # Run the pipeline
  docfoundry run`,
	PreRunE: validateRun,
	RunE:    runRun,
}

var (
	runBaseDir   string
	runLogDir    string
	runRedisPort int
)

func init() {
	RunCmd.Flags().StringVar(&runBaseDir, "base-dir", "", "Override the supervisor base directory")
	RunCmd.Flags().StringVar(&runLogDir, "log-dir", "", "Override the child log directory")
	RunCmd.Flags().IntVar(&runRedisPort, "redis-port", 0, "Override the port for a spawned redis-server")
}

func validateRun(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config; %w", err)
	}
	applyFlagOverrides(cfg)

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	specs, err := buildChildSpecs(cmd, cfg)
	if err != nil {
		return err
	}

	sup, err := supervisor.New(supervisor.Config{
		LogDir:          cfg.Supervisor.LogDir,
		PIDFilePath:     cfg.Supervisor.PIDFile,
		GracePeriod:     cfg.Supervisor.GracePeriodDuration(),
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsBasePort: metricsBasePort(cfg),
	}, specs, supervisor.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create supervisor; %w", err)
	}

	return sup.Run(ctx)
}

// applyFlagOverrides layers command-line overrides onto the loaded
// config. A base-dir override relocates the derived paths with it.
func applyFlagOverrides(cfg *config.Config) {
	if runBaseDir != "" {
		cfg.Supervisor.BaseDir = runBaseDir
		cfg.Supervisor.LogDir = filepath.Join(runBaseDir, "logs")
		cfg.Supervisor.PIDFile = filepath.Join(runBaseDir, "docfoundry.pid")
	}
	if runLogDir != "" {
		cfg.Supervisor.LogDir = runLogDir
	}
	if runRedisPort != 0 {
		cfg.Supervisor.RedisPort = runRedisPort
	}
}

// buildChildSpecs assembles the child table: broker (when spawning),
// manager, then the per-stage worker pools.
func buildChildSpecs(cmd *cobra.Command, cfg *config.Config) ([]supervisor.ChildSpec, error) {
	var specs []supervisor.ChildSpec

	if needsBrokerSpawn(cmd, cfg) {
		specs = append(specs, supervisor.ChildSpec{
			Stage:   "broker",
			Command: "redis-server",
			Args:    []string{"--port", strconv.Itoa(cfg.Supervisor.RedisPort)},
			Restart: false,
		})
	}

	specs = append(specs, supervisor.ChildSpec{
		Stage:   "manager",
		Args:    []string{"manager"},
		Restart: true,
	})

	pools := []struct {
		stage string
		sub   string
		count int
	}{
		{"extraction", "extract", cfg.Workers.Extraction},
		{"chunking", "chunk", cfg.Workers.Chunking},
		{"embedding", "embed", cfg.Workers.Embedding},
	}
	for _, pool := range pools {
		for i := 0; i < pool.count; i++ {
			workerID := fmt.Sprintf("%s-worker-%d", pool.stage, i)
			specs = append(specs, supervisor.ChildSpec{
				Stage:    pool.stage,
				WorkerID: workerID,
				Args:     []string{"worker", pool.sub, "--worker-id", workerID},
				Restart:  true,
			})
		}
	}

	return specs, nil
}

// needsBrokerSpawn reports whether the supervisor should launch its
// own redis-server: spawning is enabled and the configured broker is
// not reachable.
func needsBrokerSpawn(cmd *cobra.Command, cfg *config.Config) bool {
	if !cfg.Supervisor.SpawnBroker {
		return false
	}

	logger := slog.Default()
	b, err := cmdutil.OpenBroker(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Info("broker unreachable, supervisor will spawn redis-server",
			"stage", "supervisor",
			"event", "broker_spawn",
			"addr", cfg.Broker.Addr,
			"port", cfg.Supervisor.RedisPort,
		)
		return true
	}
	_ = b.Stop(cmd.Context())
	return false
}

func metricsBasePort(cfg *config.Config) int {
	if !cfg.Metrics.Enabled {
		return 0
	}
	_, portStr, err := net.SplitHostPort(cfg.Metrics.Addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

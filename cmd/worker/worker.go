// Package worker provides the stage worker commands: extract, chunk,
// and embed. Each runs a single blocking-pop loop against its stage
// queue; the supervisor scales a stage by spawning more processes.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/internal/cmdutil"
	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/metrics"
	"github.com/docfoundry/docfoundry/internal/pipeline"
	"github.com/docfoundry/docfoundry/internal/vectorstore"
)

var workerID string

// WorkerCmd is the parent command for the stage workers.
var WorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a pipeline stage worker",
	Long: "Run a pipeline stage worker.\n\n" +
		"A worker pops jobs from its stage queue and processes them one at a " +
		"time. Workers are normally spawned by `docfoundry run`, but can be " +
		"started by hand for debugging or ad-hoc scaling.",
}

func init() {
	WorkerCmd.PersistentFlags().StringVar(&workerID, "worker-id", "", "Unique worker identifier (required)")
	_ = WorkerCmd.MarkPersistentFlagRequired("worker-id")

	WorkerCmd.AddCommand(extractCmd)
	WorkerCmd.AddCommand(chunkCmd)
	WorkerCmd.AddCommand(embedCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run an extraction worker",
	Long: "Run an extraction worker.\n\n" +
		"Pops extraction jobs, converts the source document to the neutral " +
		"document model, and pushes a chunking job.",
	Example: `  # Run an extraction worker
  docfoundry worker extract --worker-id extraction-worker-0`,
	PreRunE: validateWorker,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd, pipeline.StageExtraction)
	},
}

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Run a chunking worker",
	Long: "Run a chunking worker.\n\n" +
		"Pops chunking jobs, splits the document into token-bounded chunks, " +
		"stages them on disk, and pushes an embedding job.",
	Example: `  # Run a chunking worker
  docfoundry worker chunk --worker-id chunking-worker-0`,
	PreRunE: validateWorker,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd, pipeline.StageChunking)
	},
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Run an embedding worker",
	Long: "Run an embedding worker.\n\n" +
		"Pops embedding jobs, embeds the staged chunks, writes the enriched " +
		"records to the vector store, and marks the document processed.",
	Example: `  # Run an embedding worker
  docfoundry worker embed --worker-id embedding-worker-0`,
	PreRunE: validateWorker,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd, pipeline.StageEmbedding)
	},
}

func validateWorker(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if workerID == "" {
		return fmt.Errorf("--worker-id is required")
	}
	return nil
}

func runWorker(cmd *cobra.Command, stage string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config; %w", err)
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, closeDeps, err := cmdutil.BuildWorkerDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	startMetrics(ctx, cmd, cfg, stage, logger)

	wcfg := pipeline.WorkerConfig{
		WorkerID:     workerID,
		Queues:       cmdutil.PipelineQueues(cfg),
		QueueTimeout: cfg.Ingest.QueueTimeoutDuration(),
		ProcessedDir: cfg.Ingest.ProcessedDir,
		StorageType:  storageType(cfg),
	}

	switch stage {
	case pipeline.StageExtraction:
		return pipeline.NewExtractWorker(deps, wcfg).Run(ctx)
	case pipeline.StageChunking:
		return pipeline.NewChunkWorker(deps, wcfg).Run(ctx)
	case pipeline.StageEmbedding:
		return pipeline.NewEmbedWorker(deps, wcfg).Run(ctx)
	default:
		return fmt.Errorf("unknown worker stage %q", stage)
	}
}

func storageType(cfg *config.Config) string {
	if cfg.VectorStore.Backend == "file" {
		return vectorstore.StorageTypeFile
	}
	return vectorstore.StorageTypeRedis
}

func startMetrics(ctx context.Context, cmd *cobra.Command, cfg *config.Config, stage string, logger *slog.Logger) {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Addr
	}
	if addr == "" {
		return
	}

	metrics.SetProcessInfo(stage)
	go metrics.Serve(ctx, addr, logger)
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docfoundry/docfoundry/internal/docmodel"
	"github.com/docfoundry/docfoundry/internal/fsutil"
	"github.com/docfoundry/docfoundry/internal/metrics"
	"github.com/docfoundry/docfoundry/internal/statusstore"
)

// stagingTimeLayout is the human-readable chunking timestamp written
// into staging metadata.
const stagingTimeLayout = "2006-01-02 15:04:05"

// ChunkWorker splits extracted documents into token-bounded chunks and
// stages them for the embed stage.
type ChunkWorker struct {
	deps Deps
	cfg  WorkerConfig
}

// NewChunkWorker creates a chunk worker.
func NewChunkWorker(deps Deps, cfg WorkerConfig) *ChunkWorker {
	return &ChunkWorker{deps: deps, cfg: cfg}
}

// Run consumes the chunking queue until the context is cancelled.
func (w *ChunkWorker) Run(ctx context.Context) error {
	logger := w.deps.logger().With(
		"worker_id", w.cfg.WorkerID,
		"stage", StageChunking,
	)
	return runLoop(ctx, w.deps, logger, w.cfg.Queues.Chunking, w.cfg.queueTimeout(), StageChunking,
		func(ctx context.Context, payload []byte) error {
			return w.process(ctx, logger, payload)
		})
}

func (w *ChunkWorker) process(ctx context.Context, logger *slog.Logger, payload []byte) error {
	var job ChunkJob
	if err := json.Unmarshal(payload, &job); err != nil {
		logger.Error("malformed chunk job discarded",
			"trace_id", "-",
			"event", "job_malformed",
			"error", err)
		return fmt.Errorf("failed to decode chunk job; %w", err)
	}

	logger = logger.With("trace_id", job.TraceID, "file", job.FilePath)
	logger.Info("chunk job started", "event", "job_start")

	// Keeps the reclaim clock fresh during long chunk/embed phases.
	w.updateStatus(ctx, logger, job.TraceID, statusstore.StatusProcessing, nil)

	if err := w.chunk(ctx, logger, job); err != nil {
		msg := err.Error()
		w.updateStatus(ctx, logger, job.TraceID, statusstore.StatusError, &msg)
		logger.Error("chunk job failed", "event", "job_error", "error", err)
		return err
	}
	return nil
}

func (w *ChunkWorker) chunk(ctx context.Context, logger *slog.Logger, job ChunkJob) error {
	doc, err := w.document(ctx, job)
	if err != nil {
		return err
	}

	chunks, err := w.deps.Chunker.Chunk(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to chunk document; %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("chunking produced no chunks")
	}
	metrics.ChunksPerDocument.Observe(float64(len(chunks)))

	now := time.Now()
	meta := make(map[string]any, len(job.Metadata)+3)
	for k, v := range job.Metadata {
		meta[k] = v
	}
	meta["chunks_count"] = len(chunks)
	meta["chunking_timestamp"] = unixNow(now)
	meta["chunking_time"] = now.Format(stagingTimeLayout)

	staging := StagingFile{Chunks: chunks, Metadata: meta}
	data, err := json.MarshalIndent(staging, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode staging file; %w", err)
	}

	stagingPath := StagingPath(w.cfg.ProcessedDir, job.Filename)
	if err := os.MkdirAll(w.cfg.ProcessedDir, 0755); err != nil {
		return fmt.Errorf("failed to create processed directory; %w", err)
	}
	if err := fsutil.AtomicWriteFile(stagingPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write staging file; %w", err)
	}

	embedJob := EmbedJob{ChunksFile: stagingPath, Metadata: meta}
	out, err := encodeJob(embedJob)
	if err != nil {
		return err
	}
	if err := w.deps.Broker.Push(ctx, w.cfg.Queues.Embedding, out); err != nil {
		return fmt.Errorf("failed to dispatch embed job; %w", err)
	}

	logger.Info("chunk job completed",
		"event", "job_complete",
		"chunks", len(chunks),
		"staging_file", stagingPath)
	return nil
}

// document recovers the structured document: the serialized form when
// present, otherwise the markdown fallback through the converter.
func (w *ChunkWorker) document(ctx context.Context, job ChunkJob) (*docmodel.Document, error) {
	if len(job.DocumentSerialized) > 0 {
		doc, err := docmodel.Decode(job.DocumentSerialized)
		if err != nil {
			return nil, fmt.Errorf("failed to decode serialized document; %w", err)
		}
		return doc, nil
	}

	if job.MarkdownFallback == "" {
		return nil, fmt.Errorf("chunk job carries neither document nor markdown fallback")
	}

	scratch, err := os.CreateTemp("", "docfoundry-fallback-*.md")
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback scratch file; %w", err)
	}
	scratchPath := scratch.Name()
	defer os.Remove(scratchPath)

	if _, err := scratch.WriteString(job.MarkdownFallback); err != nil {
		scratch.Close()
		return nil, fmt.Errorf("failed to write fallback scratch file; %w", err)
	}
	if err := scratch.Close(); err != nil {
		return nil, fmt.Errorf("failed to close fallback scratch file; %w", err)
	}

	result, err := w.deps.Converters.Convert(ctx, scratchPath)
	if err != nil {
		return nil, fmt.Errorf("failed to convert markdown fallback; %w", err)
	}
	return result.Document, nil
}

func (w *ChunkWorker) updateStatus(ctx context.Context, logger *slog.Logger, traceID string, status statusstore.Status, errMsg *string) {
	matched, err := w.deps.Status.UpdateByTrace(ctx, traceID, status, errMsg)
	if err != nil {
		logger.Warn("status update failed", "event", "status_update_error", "error", err)
		return
	}
	if !matched {
		logger.Warn("status update matched no record", "event", "status_update_superseded")
	}
}

// StagingPath returns the staging artifact path for a source basename.
// The basename keeps its extension: report.pdf → report.pdf_chunks.json.
func StagingPath(processedDir, filename string) string {
	return filepath.Join(processedDir, filename+"_chunks.json")
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/docfoundry/docfoundry/internal/converter"
	"github.com/docfoundry/docfoundry/internal/fsutil"
	"github.com/docfoundry/docfoundry/internal/statusstore"
)

// ExtractWorker converts library files into structured documents and
// hands them to the chunk stage.
type ExtractWorker struct {
	deps Deps
	cfg  WorkerConfig
}

// NewExtractWorker creates an extract worker.
func NewExtractWorker(deps Deps, cfg WorkerConfig) *ExtractWorker {
	return &ExtractWorker{deps: deps, cfg: cfg}
}

// Run consumes the extraction queue until the context is cancelled.
func (w *ExtractWorker) Run(ctx context.Context) error {
	logger := w.deps.logger().With(
		"worker_id", w.cfg.WorkerID,
		"stage", StageExtraction,
	)
	return runLoop(ctx, w.deps, logger, w.cfg.Queues.Extraction, w.cfg.queueTimeout(), StageExtraction,
		func(ctx context.Context, payload []byte) error {
			return w.process(ctx, logger, payload)
		})
}

// process handles one extract job. The claim lock is always released on
// a terminal outcome, success or error.
func (w *ExtractWorker) process(ctx context.Context, logger *slog.Logger, payload []byte) error {
	var job ExtractJob
	if err := json.Unmarshal(payload, &job); err != nil {
		logger.Error("malformed extract job discarded",
			"trace_id", "-",
			"event", "job_malformed",
			"error", err)
		return fmt.Errorf("failed to decode extract job; %w", err)
	}

	logger = logger.With("trace_id", job.TraceID, "file", job.FilePath)
	logger.Info("extract job started", "event", "job_start")

	w.updateStatus(ctx, logger, job.TraceID, statusstore.StatusProcessing, nil)

	result, err := w.convert(ctx, job)
	if err != nil {
		w.fail(ctx, logger, job, err)
		return err
	}

	meta := buildExtractionMetadata(job, result)

	serialized, err := result.Document.Encode()
	if err != nil {
		w.fail(ctx, logger, job, err)
		return err
	}

	chunkJob := ChunkJob{
		TraceID:             job.TraceID,
		FilePath:            job.FilePath,
		Filename:            job.Filename,
		DocumentSerialized:  serialized,
		MarkdownFallback:    result.Document.Markdown(),
		Metadata:            meta,
		ExtractionTimestamp: unixNow(time.Now()),
		ProducerWorkerID:    w.cfg.WorkerID,
	}
	out, err := encodeJob(chunkJob)
	if err != nil {
		w.fail(ctx, logger, job, err)
		return err
	}

	if err := w.deps.Broker.Push(ctx, w.cfg.Queues.Chunking, out); err != nil {
		err = fmt.Errorf("failed to dispatch chunk job; %w", err)
		w.fail(ctx, logger, job, err)
		return err
	}

	// Success leaves the status at processing; the embed worker performs
	// the terminal back-write once the vectors are stored.
	w.releaseLock(ctx, logger, job.Filename)
	logger.Info("extract job completed",
		"event", "job_complete",
		"sections", len(result.Document.Sections))
	return nil
}

func (w *ExtractWorker) convert(ctx context.Context, job ExtractJob) (*converter.Result, error) {
	result, err := w.deps.Converters.Convert(ctx, job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document; %w", err)
	}
	if result.Document == nil || result.Document.IsEmpty() {
		return nil, fmt.Errorf("conversion produced an empty document")
	}
	return result, nil
}

// fail marks the job's document errored and releases the claim lock.
func (w *ExtractWorker) fail(ctx context.Context, logger *slog.Logger, job ExtractJob, cause error) {
	msg := cause.Error()
	w.updateStatus(ctx, logger, job.TraceID, statusstore.StatusError, &msg)
	w.releaseLock(ctx, logger, job.Filename)
	logger.Error("extract job failed", "event", "job_error", "error", cause)
}

func (w *ExtractWorker) updateStatus(ctx context.Context, logger *slog.Logger, traceID string, status statusstore.Status, errMsg *string) {
	matched, err := w.deps.Status.UpdateByTrace(ctx, traceID, status, errMsg)
	if err != nil {
		logger.Warn("status update failed", "event", "status_update_error", "error", err)
		return
	}
	if !matched {
		logger.Warn("status update matched no record", "event", "status_update_superseded")
	}
}

func (w *ExtractWorker) releaseLock(ctx context.Context, logger *slog.Logger, filename string) {
	if err := w.deps.Broker.ReleaseLock(ctx, LockKey(filename)); err != nil {
		logger.Warn("lock release failed", "event", "lock_release_error", "error", err)
	}
}

// buildExtractionMetadata assembles the metadata map handed down the
// pipeline: file facts, extraction provenance, trace id, and whatever
// the converter exposed.
func buildExtractionMetadata(job ExtractJob, result *converter.Result) map[string]any {
	meta := map[string]any{
		"file_path":       job.FilePath,
		"file_name":       job.Filename,
		"file_type":       fsutil.FileType(job.FilePath),
		"extraction_date": time.Now().Format(time.RFC3339),
		"trace_id":        job.TraceID,
	}

	if info, err := os.Stat(job.FilePath); err == nil {
		meta["file_size"] = info.Size()
	}

	for key, value := range result.Metadata {
		if value != "" {
			meta[key] = value
		}
	}

	if metadataString(meta, converter.MetaTitle) == "" {
		meta[converter.MetaTitle] = fsutil.TitleFromPath(job.FilePath)
	}

	return meta
}

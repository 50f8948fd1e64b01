package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/docfoundry/docfoundry/internal/fsutil"
	"github.com/docfoundry/docfoundry/internal/metrics"
	"github.com/docfoundry/docfoundry/internal/statusstore"
	"github.com/docfoundry/docfoundry/internal/vectorstore"
)

// EmbedWorker encodes staged chunks into vectors, persists them, and
// performs the terminal status back-write for the attempt.
type EmbedWorker struct {
	deps Deps
	cfg  WorkerConfig
}

// NewEmbedWorker creates an embed worker.
func NewEmbedWorker(deps Deps, cfg WorkerConfig) *EmbedWorker {
	return &EmbedWorker{deps: deps, cfg: cfg}
}

// Run consumes the embedding queue until the context is cancelled.
func (w *EmbedWorker) Run(ctx context.Context) error {
	logger := w.deps.logger().With(
		"worker_id", w.cfg.WorkerID,
		"stage", StageEmbedding,
	)
	return runLoop(ctx, w.deps, logger, w.cfg.Queues.Embedding, w.cfg.queueTimeout(), StageEmbedding,
		func(ctx context.Context, payload []byte) error {
			return w.process(ctx, logger, payload)
		})
}

func (w *EmbedWorker) process(ctx context.Context, logger *slog.Logger, payload []byte) error {
	var job EmbedJob
	if err := json.Unmarshal(payload, &job); err != nil {
		logger.Error("malformed embed job discarded",
			"trace_id", "-",
			"event", "job_malformed",
			"error", err)
		return fmt.Errorf("failed to decode embed job; %w", err)
	}

	traceID := metadataString(job.Metadata, "trace_id")
	if traceID == "" {
		traceID = "-"
	}
	logger = logger.With("trace_id", traceID, "chunks_file", job.ChunksFile)
	logger.Info("embed job started", "event", "job_start")

	w.updateStatus(ctx, logger, traceID, statusstore.StatusProcessing, nil)

	if err := w.embed(ctx, logger, job, traceID); err != nil {
		msg := err.Error()
		w.updateStatus(ctx, logger, traceID, statusstore.StatusError, &msg)
		logger.Error("embed job failed", "event", "job_error", "error", err)
		return err
	}
	return nil
}

func (w *EmbedWorker) embed(ctx context.Context, logger *slog.Logger, job EmbedJob, traceID string) error {
	data, err := os.ReadFile(job.ChunksFile)
	if err != nil {
		return fmt.Errorf("failed to read staging file; %w", err)
	}

	chunks, fileMeta, err := parseStagingFile(data)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("staging file contains no chunks")
	}

	// Job metadata wins over file metadata on key collisions.
	meta := make(map[string]any, len(fileMeta)+len(job.Metadata)+1)
	for k, v := range fileMeta {
		meta[k] = v
	}
	for k, v := range job.Metadata {
		meta[k] = v
	}
	meta["embedding_model"] = w.deps.Embedder.ModelName()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := w.deps.Embedder.EmbedBatch(ctx, texts)
	metrics.RecordEmbedderRequest(w.deps.Embedder.ModelName(), err)
	if err != nil {
		return fmt.Errorf("failed to embed chunks; %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	documentID := metadataString(meta, "document_id")
	if documentID == "" {
		documentID = fsutil.DocumentID(metadataString(meta, "file_path"))
	}

	records := w.buildRecords(documentID, meta, chunks, vectors)
	if err := w.deps.Vectors.Upsert(ctx, records); err != nil {
		return fmt.Errorf("failed to upsert vector records; %w", err)
	}

	// Terminal back-write. A miss means the manager reclaimed the file
	// while this attempt was in flight; the fresh attempt owns the row.
	matched, err := w.deps.Status.UpdateByTrace(ctx, traceID, statusstore.StatusProcessed, nil)
	if err != nil {
		logger.Warn("terminal status write failed", "event", "status_update_error", "error", err)
	} else if !matched {
		logger.Info("terminal status write superseded", "event", "status_update_superseded")
	}

	logger.Info("embed job completed",
		"event", "job_complete",
		"document_id", documentID,
		"chunks", len(chunks))
	return nil
}

// buildRecords assembles one vector store record per chunk under the
// composite key `<document_id>_<i>`.
func (w *EmbedWorker) buildRecords(documentID string, meta map[string]any, chunks []StagedChunk, vectors [][]float32) []vectorstore.Record {
	now := time.Now()
	timestamp := unixNow(now)
	date := now.Format(time.RFC3339)
	model := w.deps.Embedder.ModelName()

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		composite := fmt.Sprintf("%s_%d", documentID, i)

		enriched := vectorstore.EnrichedChunk{
			Text:               c.Text,
			Embedding:          vectors[i],
			EmbeddingModel:     model,
			EmbeddingTimestamp: timestamp,
			EmbeddingDate:      date,
			DocumentID:         documentID,
			ChunkIndex:         i,
			Heading:            c.Heading,
			SectionPath:        c.SectionPath,
			TokenCount:         c.TokenCount,
			FilePath:           metadataString(meta, "file_path"),
			Title:              metadataString(meta, "title"),
			Author:             metadataString(meta, "author"),
			Date:               metadataString(meta, "date"),
			Source:             metadataString(meta, "source"),
			URL:                metadataString(meta, "url"),
			DocType:            metadataString(meta, "doc_type"),
			Category:           metadataString(meta, "category"),
			Tags:               metadataString(meta, "tags"),
			Language:           metadataString(meta, "language"),
		}

		recMeta := make(map[string]any, len(meta)+2)
		for k, v := range meta {
			recMeta[k] = v
		}
		recMeta["document_id"] = documentID
		recMeta["chunk_index"] = i

		records[i] = vectorstore.Record{
			DocumentID: composite,
			Metadata:   recMeta,
			Vectors: vectorstore.VectorInfo{
				Count:      1,
				Dimensions: len(vectors[i]),
				Model:      model,
			},
			EmbeddedChunks: []vectorstore.EnrichedChunk{enriched},
			Processing: vectorstore.Processing{
				EmbeddingTimestamp: timestamp,
				EmbeddingTime:      date,
				StorageType:        w.cfg.StorageType,
			},
		}
	}
	return records
}

func (w *EmbedWorker) updateStatus(ctx context.Context, logger *slog.Logger, traceID string, status statusstore.Status, errMsg *string) {
	if traceID == "-" {
		return
	}
	matched, err := w.deps.Status.UpdateByTrace(ctx, traceID, status, errMsg)
	if err != nil {
		logger.Warn("status update failed", "event", "status_update_error", "error", err)
		return
	}
	if !matched {
		logger.Warn("status update matched no record", "event", "status_update_superseded")
	}
}

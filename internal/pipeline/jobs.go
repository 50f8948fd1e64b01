// Package pipeline implements the document ingestion fabric: the
// scan-claim-dispatch manager and the extract, chunk, and embed worker
// loops. Stages communicate only through broker queues, a staging
// artifact on disk, and the status store; the trace id minted at claim
// time rides through every hop.
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/docfoundry/docfoundry/internal/chunker"
)

// Stage names used in logs and metrics.
const (
	StageManager    = "manager"
	StageExtraction = "extraction"
	StageChunking   = "chunking"
	StageEmbedding  = "embedding"
)

// ManagerID is the lock owner value written by the manager.
const ManagerID = "extraction-manager"

// LockKey returns the claim lock key for a library file.
func LockKey(filename string) string {
	return "lock:extraction:" + filename
}

// ExtractJob is the payload on the extraction queue.
type ExtractJob struct {
	TraceID      string         `json:"trace_id"`
	FilePath     string         `json:"file_path"`
	Filename     string         `json:"filename"`
	JobTimestamp float64        `json:"job_timestamp"`
	JobCreated   string         `json:"job_created"`
	Metadata     map[string]any `json:"metadata"`
}

// ChunkJob is the payload on the chunking queue. DocumentSerialized is
// the versioned neutral document; MarkdownFallback is consulted only
// when it is absent.
type ChunkJob struct {
	TraceID             string          `json:"trace_id"`
	FilePath            string          `json:"file_path"`
	Filename            string          `json:"filename"`
	DocumentSerialized  json.RawMessage `json:"document_serialized,omitempty"`
	MarkdownFallback    string          `json:"markdown_fallback,omitempty"`
	Metadata            map[string]any  `json:"metadata"`
	ExtractionTimestamp float64         `json:"extraction_timestamp"`
	ProducerWorkerID    string          `json:"producer_worker_id"`
}

// EmbedJob is the payload on the embedding queue. It references the
// staging artifact rather than carrying the chunks inline.
type EmbedJob struct {
	ChunksFile string         `json:"chunks_file"`
	Metadata   map[string]any `json:"metadata"`
}

// StagingFile is the chunk-set artifact written between the chunk and
// embed stages.
type StagingFile struct {
	Chunks   []chunker.Chunk `json:"chunks"`
	Metadata map[string]any  `json:"metadata"`
}

// StagedChunk is one chunk read back from a staging file. Older
// producers wrote bare strings; those surface with only Text set.
type StagedChunk struct {
	Text        string
	Heading     string
	SectionPath string
	TokenCount  int
}

// parseStagingFile decodes a staging artifact, tolerating the legacy
// chunk-list keys (`documents`, `items`, `texts`) and bare-string
// entries.
func parseStagingFile(data []byte) ([]StagedChunk, map[string]any, error) {
	var raw struct {
		Chunks    []json.RawMessage `json:"chunks"`
		Documents []json.RawMessage `json:"documents"`
		Items     []json.RawMessage `json:"items"`
		Texts     []json.RawMessage `json:"texts"`
		Metadata  map[string]any    `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse staging file; %w", err)
	}

	entries := raw.Chunks
	if entries == nil {
		for _, legacy := range [][]json.RawMessage{raw.Documents, raw.Items, raw.Texts} {
			if legacy != nil {
				entries = legacy
				break
			}
		}
	}
	if entries == nil {
		return nil, nil, fmt.Errorf("staging file has no chunk list")
	}

	chunks := make([]StagedChunk, 0, len(entries))
	for i, entry := range entries {
		// Bare string entry.
		var text string
		if err := json.Unmarshal(entry, &text); err == nil {
			chunks = append(chunks, StagedChunk{Text: text})
			continue
		}

		var rec chunker.Chunk
		if err := json.Unmarshal(entry, &rec); err != nil {
			return nil, nil, fmt.Errorf("failed to parse staged chunk %d; %w", i, err)
		}
		chunks = append(chunks, StagedChunk{
			Text:        rec.Text,
			Heading:     rec.Heading,
			SectionPath: rec.SectionPath,
			TokenCount:  rec.TokenCount,
		})
	}

	return chunks, raw.Metadata, nil
}

// encodeJob marshals a queue payload.
func encodeJob(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload; %w", err)
	}
	return data, nil
}

// unixNow returns the current time as a unix float timestamp.
func unixNow(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// metadataString reads a string-valued key from a metadata map.
func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

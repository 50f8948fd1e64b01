// Package vectorstore persists embedded chunks with their provenance
// metadata and serves nearest-neighbor queries over them. One record per
// chunk, keyed by the composite document id `<document_id>_<chunk_index>`.
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
)

// Storage type labels stamped into record processing blocks.
const (
	StorageTypeRedis = "redis"
	StorageTypeFile  = "file"
)

// ErrRecordNotFound is returned when a composite document id has no record.
var ErrRecordNotFound = errors.New("record not found")

// VectorInfo describes the vectors held by a record.
type VectorInfo struct {
	Count      int    `json:"count"`
	Dimensions int    `json:"dimensions"`
	Model      string `json:"model"`
}

// Processing records when and where the embedding was persisted.
type Processing struct {
	EmbeddingTimestamp float64 `json:"embedding_timestamp"`
	EmbeddingTime      string  `json:"embedding_time"`
	StorageType        string  `json:"storage_type"`
}

// EnrichedChunk is one chunk with its embedding and provenance. The
// source metadata fields are carried only when present.
type EnrichedChunk struct {
	Text               string    `json:"text"`
	Embedding          []float32 `json:"embedding"`
	EmbeddingModel     string    `json:"embedding_model"`
	EmbeddingTimestamp float64   `json:"embedding_timestamp"`
	EmbeddingDate      string    `json:"embedding_date"`
	DocumentID         string    `json:"document_id"`
	ChunkIndex         int       `json:"chunk_index"`
	Heading            string    `json:"heading,omitempty"`
	SectionPath        string    `json:"section_path,omitempty"`
	TokenCount         int       `json:"token_count"`

	FilePath string `json:"file_path,omitempty"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Date     string `json:"date,omitempty"`
	Source   string `json:"source,omitempty"`
	URL      string `json:"url,omitempty"`
	DocType  string `json:"doc_type,omitempty"`
	Category string `json:"category,omitempty"`
	Tags     string `json:"tags,omitempty"`
	Language string `json:"language,omitempty"`
}

// Record is the persisted unit, keyed by `<document_id>_<chunk_index>`.
// Its own DocumentID field equals that composite key; the bare document
// id lives in Metadata.
type Record struct {
	DocumentID     string          `json:"document_id"`
	Metadata       map[string]any  `json:"metadata"`
	Vectors        VectorInfo      `json:"vectors"`
	EmbeddedChunks []EnrichedChunk `json:"embedded_chunks"`
	Processing     Processing      `json:"processing"`
}

// SearchResult pairs a record with its similarity to the query.
type SearchResult struct {
	Record Record
	Score  float64
}

// Store persists records and answers similarity queries.
type Store interface {
	// Upsert stores records, replacing any with matching composite ids.
	Upsert(ctx context.Context, records []Record) error

	// Get returns the record for a composite document id, or
	// ErrRecordNotFound.
	Get(ctx context.Context, documentID string) (*Record, error)

	// SearchSimilar scans every record and returns up to topK with
	// cosine similarity >= threshold, best first.
	SearchSimilar(ctx context.Context, query []float32, topK int, threshold float64) ([]SearchResult, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankRecords scores records against the query and keeps the topK above
// the threshold. Shared by both backends.
func rankRecords(records []Record, query []float32, topK int, threshold float64) []SearchResult {
	var results []SearchResult
	for _, rec := range records {
		if len(rec.EmbeddedChunks) == 0 {
			continue
		}

		// Records hold one chunk each; score the best if there are more.
		best := -1.0
		for _, chunk := range rec.EmbeddedChunks {
			if score := CosineSimilarity(query, chunk.Embedding); score > best {
				best = score
			}
		}

		if best >= threshold {
			results = append(results, SearchResult{Record: rec, Score: best})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

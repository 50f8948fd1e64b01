package vectorstore

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRecord(compositeID string, chunkIndex int, embedding []float32) Record {
	return Record{
		DocumentID: compositeID,
		Metadata: map[string]any{
			"document_id": "doc_1234567",
			"chunk_index": chunkIndex,
		},
		Vectors: VectorInfo{
			Count:      1,
			Dimensions: len(embedding),
			Model:      "simulated",
		},
		EmbeddedChunks: []EnrichedChunk{{
			Text:       "chunk text",
			Embedding:  embedding,
			DocumentID: "doc_1234567",
			ChunkIndex: chunkIndex,
			TokenCount: 3,
		}},
		Processing: Processing{
			EmbeddingTimestamp: 1712345678.9,
			EmbeddingTime:      "2024-04-05T12:34:38Z",
			StorageType:        StorageTypeRedis,
		},
	}
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client)
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

// stores builds both backends so shared contract tests cover each.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"redis": newRedisStore(t),
		"file":  newFileStore(t),
	}
}

func TestUpsertAndGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rec := testRecord("doc_1234567_0", 0, []float32{1, 0, 0})
			if err := store.Upsert(ctx, []Record{rec}); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			got, err := store.Get(ctx, "doc_1234567_0")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.DocumentID != rec.DocumentID {
				t.Errorf("DocumentID = %q, want %q", got.DocumentID, rec.DocumentID)
			}
			if len(got.EmbeddedChunks) != 1 {
				t.Fatalf("EmbeddedChunks len = %d, want 1", len(got.EmbeddedChunks))
			}
			if got.Vectors.Dimensions != 3 {
				t.Errorf("Vectors.Dimensions = %d, want 3", got.Vectors.Dimensions)
			}
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "doc_0000000_0")
			if !errors.Is(err, ErrRecordNotFound) {
				t.Fatalf("Get() error = %v, want ErrRecordNotFound", err)
			}
		})
	}
}

func TestUpsert_ReplacesExisting(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := testRecord("doc_1234567_0", 0, []float32{1, 0, 0})
			if err := store.Upsert(ctx, []Record{first}); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			second := testRecord("doc_1234567_0", 0, []float32{0, 1, 0})
			second.EmbeddedChunks[0].Text = "replaced"
			if err := store.Upsert(ctx, []Record{second}); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			got, err := store.Get(ctx, "doc_1234567_0")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.EmbeddedChunks[0].Text != "replaced" {
				t.Errorf("chunk text = %q, want %q", got.EmbeddedChunks[0].Text, "replaced")
			}

			count, err := store.Count(ctx)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if count != 1 {
				t.Errorf("Count() = %d after replace, want 1", count)
			}
		})
	}
}

func TestSearchSimilar_OrderAndTopK(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			records := []Record{
				testRecord("doc_1234567_0", 0, []float32{1, 0, 0}),
				testRecord("doc_1234567_1", 1, []float32{0.9, 0.1, 0}),
				testRecord("doc_1234567_2", 2, []float32{0, 1, 0}),
			}
			if err := store.Upsert(ctx, records); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			results, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, 2, 0.0)
			if err != nil {
				t.Fatalf("SearchSimilar() error = %v", err)
			}

			if len(results) != 2 {
				t.Fatalf("SearchSimilar() returned %d results, want 2", len(results))
			}
			if results[0].Record.DocumentID != "doc_1234567_0" {
				t.Errorf("best match = %q, want doc_1234567_0", results[0].Record.DocumentID)
			}
			if results[0].Score < results[1].Score {
				t.Error("results not ordered best first")
			}
		})
	}
}

func TestSearchSimilar_Threshold(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			records := []Record{
				testRecord("doc_1234567_0", 0, []float32{1, 0, 0}),
				testRecord("doc_1234567_1", 1, []float32{0, 1, 0}),
			}
			if err := store.Upsert(ctx, records); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			results, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, 10, 0.5)
			if err != nil {
				t.Fatalf("SearchSimilar() error = %v", err)
			}

			if len(results) != 1 {
				t.Fatalf("SearchSimilar() returned %d results above threshold, want 1", len(results))
			}
			if results[0].Record.DocumentID != "doc_1234567_0" {
				t.Errorf("match = %q, want doc_1234567_0", results[0].Record.DocumentID)
			}
		})
	}
}

func TestSearchSimilar_EmptyStore(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			results, err := store.SearchSimilar(context.Background(), []float32{1, 0, 0}, 5, 0.0)
			if err != nil {
				t.Fatalf("SearchSimilar() error = %v", err)
			}
			if len(results) != 0 {
				t.Errorf("SearchSimilar() returned %d results from empty store", len(results))
			}
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"mismatched lengths", []float32{1, 0}, []float32{1}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, WithKeyPrefix("custom:vec:"))
	ctx := context.Background()

	rec := testRecord("doc_1234567_0", 0, []float32{1, 0, 0})
	if err := store.Upsert(ctx, []Record{rec}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if !mr.Exists("custom:vec:doc_1234567_0") {
		t.Error("record not stored under custom prefix")
	}
}

package embedder

import (
	"context"
	"math"
	"testing"
)

func TestNew_SelectsProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  bool
	}{
		{"openai", ProviderOpenAI, false},
		{"gemini", ProviderGemini, false},
		{"simulated", ProviderSimulated, false},
		{"empty defaults to simulated", "", false},
		{"unknown", "cohere", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(Config{Provider: tt.provider})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("New(%q) expected error", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.provider, err)
			}
			if e == nil {
				t.Fatalf("New(%q) returned nil embedder", tt.provider)
			}
		})
	}
}

func TestOpenAI_UnavailableWithoutKey(t *testing.T) {
	e := NewOpenAI(Config{})
	if e.Available() {
		t.Error("Available() = true without API key")
	}
	if _, err := e.EmbedBatch(context.Background(), []string{"x"}); err == nil {
		t.Error("EmbedBatch() expected error without API key")
	}
}

func TestGemini_UnavailableWithoutKey(t *testing.T) {
	e := NewGemini(Config{})
	if e.Available() {
		t.Error("Available() = true without API key")
	}
	if _, err := e.EmbedBatch(context.Background(), []string{"x"}); err == nil {
		t.Error("EmbedBatch() expected error without API key")
	}
}

func TestOpenAI_Defaults(t *testing.T) {
	e := NewOpenAI(Config{APIKey: "sk-test"})
	if e.ModelName() != "text-embedding-3-small" {
		t.Errorf("ModelName() = %q", e.ModelName())
	}
	if e.Dimensions() != 1536 {
		t.Errorf("Dimensions() = %d, want 1536", e.Dimensions())
	}
	if !e.Available() {
		t.Error("Available() = false with API key")
	}
}

func TestSimulated_Deterministic(t *testing.T) {
	e := NewSimulated(64)
	ctx := context.Background()

	first, err := e.EmbedBatch(ctx, []string{"hello world", "other text"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	second, err := e.EmbedBatch(ctx, []string{"hello world", "other text"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("EmbedBatch() returned %d/%d vectors, want 2/2", len(first), len(second))
	}

	for i := range first {
		if len(first[i]) != 64 {
			t.Fatalf("vector %d has %d dimensions, want 64", i, len(first[i]))
		}
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("vector %d component %d differs across calls", i, j)
			}
		}
	}
}

func TestSimulated_DistinctTextsDistinctVectors(t *testing.T) {
	e := NewSimulated(64)

	vecs, err := e.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}

	same := true
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical vectors")
	}
}

func TestSimulated_UnitNorm(t *testing.T) {
	e := NewSimulated(128)

	vecs, err := e.EmbedBatch(context.Background(), []string{"normalize me"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)

	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("vector norm = %f, want 1.0", norm)
	}
}

func TestSimulated_EmptyBatch(t *testing.T) {
	e := NewSimulated(0)

	if e.Dimensions() != simulatedDefaultDims {
		t.Errorf("Dimensions() = %d, want default %d", e.Dimensions(), simulatedDefaultDims)
	}

	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 0 {
		t.Errorf("EmbedBatch(nil) returned %d vectors, want 0", len(vecs))
	}
}

func TestSimulated_CancelledContext(t *testing.T) {
	e := NewSimulated(16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.EmbedBatch(ctx, []string{"x"}); err == nil {
		t.Error("EmbedBatch() expected error for cancelled context")
	}
}

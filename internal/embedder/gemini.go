package embedder

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	geminiDefaultModel = "text-embedding-004"
	geminiDefaultDims  = 768
)

// Gemini embeds through the Google Generative AI API.
type Gemini struct {
	apiKey     string
	model      string
	dimensions int
	limiter    *rate.Limiter
}

// NewGemini creates a Gemini-backed embedder.
func NewGemini(cfg Config) *Gemini {
	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = geminiDefaultDims
	}

	return &Gemini{
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: dims,
		limiter:    newLimiter(cfg.RequestsPerMinute),
	}
}

// ModelName returns the model identifier.
func (e *Gemini) ModelName() string {
	return e.model
}

// Dimensions returns the vector dimensionality.
func (e *Gemini) Dimensions() int {
	return e.dimensions
}

// Available reports whether an API key is configured.
func (e *Gemini) Available() bool {
	return e.apiKey != ""
}

// EmbedBatch encodes all texts in a single batch request. The client is
// created per call; the genai client holds a gRPC connection that should
// not outlive the request context.
func (e *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.Available() {
		return nil, fmt.Errorf("gemini embedder not available; no API key configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed; %w", err)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(e.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client; %w", err)
	}
	defer client.Close()

	em := client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to batch embed contents; %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

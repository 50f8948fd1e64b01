package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	openaiDefaultModel = "text-embedding-3-small"
	openaiDefaultDims  = 1536
)

// OpenAI embeds through the OpenAI embeddings API.
type OpenAI struct {
	client     *openai.Client
	apiKey     string
	model      string
	dimensions int
	limiter    *rate.Limiter
}

// NewOpenAI creates an OpenAI-backed embedder.
func NewOpenAI(cfg Config) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = openaiDefaultModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = openaiDefaultDims
	}

	e := &OpenAI{
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: dims,
		limiter:    newLimiter(cfg.RequestsPerMinute),
	}
	if e.apiKey != "" {
		e.client = openai.NewClient(e.apiKey)
	}
	return e
}

// ModelName returns the model identifier.
func (e *OpenAI) ModelName() string {
	return e.model
}

// Dimensions returns the vector dimensionality.
func (e *OpenAI) Dimensions() int {
	return e.dimensions
}

// Available reports whether an API key is configured.
func (e *OpenAI) Available() bool {
	return e.client != nil
}

// EmbedBatch encodes all texts in a single API request.
func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.Available() {
		return nil, fmt.Errorf("openai embedder not available; no API key configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed; %w", err)
	}

	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	// Only the text-embedding-3 family accepts a dimensions override.
	if e.model == "text-embedding-3-small" || e.model == "text-embedding-3-large" {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings; %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Package embedder computes vector embeddings for chunk texts. Backends
// share one batched contract so the embed worker encodes a document's
// chunks in a single call regardless of provider.
package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderSimulated = "simulated"
)

// Embedder generates embeddings for batches of texts.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the model identifier used by this backend.
	ModelName() string

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Available reports whether the backend is configured and ready.
	Available() bool
}

// Config selects and configures a backend.
type Config struct {
	Provider          string
	Model             string
	Dimensions        int
	RequestsPerMinute int
	APIKey            string
}

// New constructs the backend named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(cfg), nil
	case ProviderSimulated, "":
		return NewSimulated(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// newLimiter builds a token-bucket limiter from a requests-per-minute
// budget. Zero means unlimited.
func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
}

package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

const simulatedDefaultDims = 384

// Simulated produces deterministic pseudo-embeddings derived from the
// text content. Identical texts always yield identical vectors, so
// offline runs and tests can assert on store contents and similarity
// ordering without a provider.
type Simulated struct {
	dimensions int
}

// NewSimulated creates a deterministic offline embedder.
func NewSimulated(dimensions int) *Simulated {
	if dimensions <= 0 {
		dimensions = simulatedDefaultDims
	}
	return &Simulated{dimensions: dimensions}
}

// ModelName returns the synthetic model identifier.
func (e *Simulated) ModelName() string {
	return "simulated"
}

// Dimensions returns the vector dimensionality.
func (e *Simulated) Dimensions() int {
	return e.dimensions
}

// Available always reports true.
func (e *Simulated) Available() bool {
	return true
}

// EmbedBatch derives one unit vector per text from a hash chain over its
// bytes.
func (e *Simulated) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *Simulated) embed(text string) []float32 {
	vec := make([]float32, e.dimensions)
	seed := sha256.Sum256([]byte(text))

	var norm float64
	state := seed
	for i := 0; i < e.dimensions; i++ {
		// Re-hash every 4 components to stretch the seed.
		if i%4 == 0 && i > 0 {
			state = sha256.Sum256(state[:])
		}
		bits := binary.BigEndian.Uint64(state[(i%4)*8 : (i%4)*8+8])
		// Map to [-1, 1).
		v := float64(bits)/float64(math.MaxUint64)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

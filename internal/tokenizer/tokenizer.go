// Package tokenizer provides token counting for the chunker's budget,
// backed by tiktoken with a heuristic fallback.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the encoding used when none is configured
// (GPT-4, GPT-3.5-turbo, text-embedding family).
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens in text.
type Tokenizer interface {
	// Count returns the token count for text.
	Count(text string) int

	// Encoding returns the encoding name in use.
	Encoding() string
}

// Tiktoken is a Tokenizer backed by a tiktoken encoder. The encoder is
// loaded lazily on first use; if loading fails the tokenizer degrades
// to a ~4 chars per token heuristic.
type Tiktoken struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	encErr   error
}

// New creates a tokenizer for the given encoding name.
// An empty encoding selects DefaultEncoding.
func New(encoding string) *Tiktoken {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Tiktoken{encoding: encoding}
}

// Encoding returns the configured encoding name.
func (t *Tiktoken) Encoding() string {
	return t.encoding
}

// Count returns the token count for text using tiktoken.
// Falls back to a heuristic (~4 chars per token) if the encoding
// cannot be loaded.
func (t *Tiktoken) Count(text string) int {
	t.once.Do(func() {
		t.enc, t.encErr = tiktoken.GetEncoding(t.encoding)
	})

	if t.encErr != nil || t.enc == nil {
		return heuristicCount(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// heuristicCount approximates token count at ~4 characters per token.
func heuristicCount(text string) int {
	return (len(text) + 3) / 4
}

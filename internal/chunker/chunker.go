// Package chunker splits structured documents into token-bounded chunks
// that respect structural boundaries. Adjacent sibling sections are
// coalesced when their joint token count stays within budget.
package chunker

import (
	"context"
	"strings"

	"github.com/docfoundry/docfoundry/internal/docmodel"
	"github.com/docfoundry/docfoundry/internal/tokenizer"
)

// DefaultMaxTokens is the chunk token budget used when none is configured.
const DefaultMaxTokens = 8191

// Chunk is one unit of chunker output, carrying its text and
// structural provenance.
type Chunk struct {
	Text        string `json:"text"`
	Heading     string `json:"heading,omitempty"`
	SectionPath string `json:"section_path,omitempty"`
	ChunkIndex  int    `json:"chunk_index"`
	TokenCount  int    `json:"token_count"`
}

// Hybrid is a chunker that respects both the token budget and the
// document's section structure.
type Hybrid struct {
	tok        tokenizer.Tokenizer
	maxTokens  int
	mergePeers bool
}

// Option configures the Hybrid chunker.
type Option func(*Hybrid)

// WithMaxTokens sets the per-chunk token budget.
func WithMaxTokens(n int) Option {
	return func(h *Hybrid) {
		if n > 0 {
			h.maxTokens = n
		}
	}
}

// WithMergePeers controls coalescing of adjacent sibling sections.
func WithMergePeers(merge bool) Option {
	return func(h *Hybrid) {
		h.mergePeers = merge
	}
}

// New creates a Hybrid chunker over the given tokenizer.
func New(tok tokenizer.Tokenizer, opts ...Option) *Hybrid {
	h := &Hybrid{
		tok:        tok,
		maxTokens:  DefaultMaxTokens,
		mergePeers: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MaxTokens returns the configured per-chunk token budget.
func (h *Hybrid) MaxTokens() int {
	return h.maxTokens
}

// Chunk splits a document into an ordered sequence of chunks. Every
// chunk's token count is within the budget; indexes are dense from 0.
func (h *Hybrid) Chunk(ctx context.Context, doc *docmodel.Document) ([]Chunk, error) {
	var chunks []Chunk

	for _, section := range doc.Sections {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		text := sectionText(section)
		if text == "" {
			continue
		}

		count := h.tok.Count(text)
		if count <= h.maxTokens {
			if h.mergePeers && h.tryMerge(&chunks, section, text, count) {
				continue
			}
			chunks = append(chunks, Chunk{
				Text:        text,
				Heading:     section.Heading,
				SectionPath: section.Path,
				TokenCount:  count,
			})
			continue
		}

		chunks = append(chunks, h.splitLargeSection(ctx, section, text)...)
	}

	for i := range chunks {
		chunks[i].ChunkIndex = i
	}

	return chunks, nil
}

// tryMerge coalesces a section into the previous chunk when both are
// siblings (same parent path) and the joint count stays within budget.
func (h *Hybrid) tryMerge(chunks *[]Chunk, section docmodel.Section, text string, count int) bool {
	if len(*chunks) == 0 {
		return false
	}

	prev := &(*chunks)[len(*chunks)-1]
	if parentPath(prev.SectionPath) != parentPath(section.Path) {
		return false
	}

	merged := prev.Text + "\n\n" + text
	jointCount := h.tok.Count(merged)
	if jointCount > h.maxTokens {
		return false
	}

	prev.Text = merged
	prev.TokenCount = jointCount
	return true
}

// splitLargeSection breaks an over-budget section by paragraphs, then
// sentences, then words, so every emitted chunk fits.
func (h *Hybrid) splitLargeSection(ctx context.Context, section docmodel.Section, text string) []Chunk {
	var chunks []Chunk
	current := ""

	emit := func() {
		body := strings.TrimSpace(current)
		current = ""
		if body == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Text:        body,
			Heading:     section.Heading,
			SectionPath: section.Path,
			TokenCount:  h.tok.Count(body),
		})
	}

	for _, piece := range h.splitPieces(text) {
		select {
		case <-ctx.Done():
			emit()
			return chunks
		default:
		}

		candidate := join(current, "\n\n", piece)
		if current != "" && h.tok.Count(candidate) > h.maxTokens {
			emit()
			candidate = piece
		}
		current = candidate
	}

	emit()

	return chunks
}

// splitPieces yields paragraph-sized pieces, recursively splitting ones
// that alone exceed the budget.
func (h *Hybrid) splitPieces(text string) []string {
	var pieces []string

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if h.tok.Count(para) <= h.maxTokens {
			pieces = append(pieces, para)
			continue
		}

		pieces = append(pieces, h.splitOversized(para)...)
	}

	return pieces
}

// splitOversized splits a single over-budget paragraph by sentences,
// falling back to a word-level hard split.
func (h *Hybrid) splitOversized(para string) []string {
	var pieces []string
	current := ""

	flush := func() {
		if s := strings.TrimSpace(current); s != "" {
			pieces = append(pieces, s)
		}
		current = ""
	}

	for _, sentence := range splitSentences(para) {
		if h.tok.Count(sentence) > h.maxTokens {
			flush()
			pieces = append(pieces, h.hardSplit(sentence)...)
			continue
		}

		candidate := join(current, " ", sentence)
		if current != "" && h.tok.Count(candidate) > h.maxTokens {
			flush()
			candidate = sentence
		}
		current = candidate
	}

	flush()

	return pieces
}

// hardSplit chops text on word boundaries so every piece fits the
// budget. A single word that is itself over budget (long URLs, base64
// runs) is cut at rune granularity.
func (h *Hybrid) hardSplit(text string) []string {
	var pieces []string
	current := ""

	for _, word := range strings.Fields(text) {
		if h.tok.Count(word) > h.maxTokens {
			if current != "" {
				pieces = append(pieces, current)
				current = ""
			}
			pieces = append(pieces, h.splitWord(word)...)
			continue
		}

		candidate := join(current, " ", word)
		if current != "" && h.tok.Count(candidate) > h.maxTokens {
			pieces = append(pieces, current)
			candidate = word
		}
		current = candidate
	}

	if current != "" {
		pieces = append(pieces, current)
	}

	return pieces
}

// splitWord cuts one unbreakable run into budget-sized pieces. Each
// piece is the longest remaining rune prefix that still fits; a lone
// rune is emitted even if the tokenizer prices it over budget, since
// no smaller split exists.
func (h *Hybrid) splitWord(word string) []string {
	var pieces []string
	runes := []rune(word)

	for len(runes) > 0 {
		lo, hi := 1, len(runes)
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if h.tok.Count(string(runes[:mid])) <= h.maxTokens {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		pieces = append(pieces, string(runes[:lo]))
		runes = runes[lo:]
	}

	return pieces
}

// join concatenates two parts with sep, tolerating an empty left side.
func join(left, sep, right string) string {
	if left == "" {
		return right
	}
	return left + sep + right
}

// splitSentences splits prose on sentence-ending punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(text); i++ {
		ch := text[i]
		current.WriteByte(ch)

		if (ch == '.' || ch == '!' || ch == '?') &&
			(i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == '\n') {
			s := strings.TrimSpace(current.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// sectionText composes the chunkable text of a section, heading included
// so every chunk is self-describing.
func sectionText(s docmodel.Section) string {
	heading := strings.TrimSpace(s.Heading)
	body := strings.TrimSpace(s.Text)

	switch {
	case heading == "":
		return body
	case body == "" || body == heading:
		return heading
	default:
		return heading + "\n\n" + body
	}
}

// parentPath returns the heading trail above a section path.
func parentPath(path string) string {
	idx := strings.LastIndex(path, " > ")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

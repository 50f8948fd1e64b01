package converter

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docfoundry/docfoundry/internal/docmodel"
	"github.com/docfoundry/docfoundry/internal/fsutil"
)

// TextConverter wraps plain text files as single-section documents,
// splitting on blank-line paragraph boundaries.
type TextConverter struct{}

// NewTextConverter creates a new plain text converter.
func NewTextConverter() *TextConverter {
	return &TextConverter{}
}

// Name returns the backend's identifier.
func (c *TextConverter) Name() string {
	return "text"
}

// Extensions returns the extensions this backend handles.
func (c *TextConverter) Extensions() []string {
	return []string{".txt"}
}

// Convert reads a plain text file into a structured document.
func (c *TextConverter) Convert(ctx context.Context, path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file; %w", err)
	}

	doc := docmodel.New(fsutil.TitleFromPath(path))

	for _, para := range strings.Split(string(content), "\n\n") {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		doc.Sections = append(doc.Sections, docmodel.Section{Text: para})
	}

	return &Result{Document: doc, Metadata: Metadata{}}, nil
}

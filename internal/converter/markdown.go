package converter

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/docfoundry/docfoundry/internal/docmodel"
	"github.com/docfoundry/docfoundry/internal/fsutil"
)

// Matches markdown headings (# to ######)
var headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// MarkdownConverter builds a structured document from markdown sections.
type MarkdownConverter struct{}

// NewMarkdownConverter creates a new markdown converter.
func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{}
}

// Name returns the backend's identifier.
func (c *MarkdownConverter) Name() string {
	return "markdown"
}

// Extensions returns the extensions this backend handles.
func (c *MarkdownConverter) Extensions() []string {
	return []string{".md", ".markdown"}
}

// Convert reads a markdown file and splits it into heading-delimited sections.
func (c *MarkdownConverter) Convert(ctx context.Context, path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file; %w", err)
	}

	doc, err := ParseMarkdown(ctx, string(content))
	if err != nil {
		return nil, err
	}

	meta := Metadata{}
	if doc.Title != "" {
		meta[MetaTitle] = doc.Title
	} else {
		doc.Title = fsutil.TitleFromPath(path)
	}

	return &Result{Document: doc, Metadata: meta}, nil
}

// ParseMarkdown splits markdown text into a structured document.
// Headings open new sections; fenced code blocks are never split on.
// The first level-1 heading becomes the document title.
func ParseMarkdown(ctx context.Context, text string) (*docmodel.Document, error) {
	doc := docmodel.New("")

	lines := strings.Split(text, "\n")

	var (
		current      *docmodel.Section
		headingStack []string
		body         strings.Builder
		inCodeBlock  bool
	)

	flush := func() {
		if current == nil && body.Len() == 0 {
			return
		}
		if current == nil {
			current = &docmodel.Section{}
		}
		current.Text = strings.TrimSpace(body.String())
		body.Reset()
		if current.Text != "" || current.Heading != "" {
			doc.Sections = append(doc.Sections, *current)
		}
		current = nil
	}

	for _, line := range lines {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCodeBlock = !inCodeBlock
		}

		matches := headingRegex.FindStringSubmatch(line)
		if !inCodeBlock && matches != nil {
			flush()

			level := len(matches[1])
			heading := strings.TrimSpace(matches[2])

			if level == 1 && doc.Title == "" {
				doc.Title = heading
			}

			for len(headingStack) >= level {
				headingStack = headingStack[:len(headingStack)-1]
			}
			headingStack = append(headingStack, heading)

			current = &docmodel.Section{
				Heading: heading,
				Level:   level,
				Path:    strings.Join(headingStack, " > "),
			}
			continue
		}

		body.WriteString(line)
		body.WriteString("\n")
	}

	flush()

	return doc, nil
}

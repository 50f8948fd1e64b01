// Package docmodel defines the neutral, versioned document representation
// shipped from the extract stage to the chunk stage. Both sides pin the
// schema version so the chunk stage can deserialize losslessly without
// re-invoking the converter.
package docmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SchemaVersion is the wire schema version both producer and consumer pin.
const SchemaVersion = 1

// ErrSchemaVersion is returned when a serialized document carries an
// unsupported schema version.
var ErrSchemaVersion = errors.New("unsupported document schema version")

// Section is one structural unit of a document. Path is the full heading
// trail ("A > B"), Page the 1-based source page when known.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Level   int    `json:"level,omitempty"`
	Path    string `json:"path,omitempty"`
	Text    string `json:"text"`
	Page    int    `json:"page,omitempty"`
}

// Document is the structured representation a converter produces.
type Document struct {
	SchemaVersion int       `json:"schema_version"`
	Title         string    `json:"title,omitempty"`
	Sections      []Section `json:"sections"`
	Pages         int       `json:"pages,omitempty"`
}

// New returns an empty Document stamped with the current schema version.
func New(title string) *Document {
	return &Document{
		SchemaVersion: SchemaVersion,
		Title:         title,
	}
}

// Encode serializes the document for a queue payload.
func (d *Document) Encode() (json.RawMessage, error) {
	if d.SchemaVersion == 0 {
		d.SchemaVersion = SchemaVersion
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document; %w", err)
	}
	return data, nil
}

// Decode deserializes a queue payload back into a Document, rejecting
// unknown schema versions.
func Decode(raw json.RawMessage) (*Document, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty document payload")
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document; %w", err)
	}

	if doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, doc.SchemaVersion, SchemaVersion)
	}

	return &doc, nil
}

// IsEmpty reports whether the document carries no extractable text.
func (d *Document) IsEmpty() bool {
	for _, s := range d.Sections {
		if strings.TrimSpace(s.Text) != "" {
			return false
		}
	}
	return true
}

// Markdown renders the document as markdown. This is the backward
// compatible fallback payload for consumers that cannot read the
// structured form.
func (d *Document) Markdown() string {
	var b strings.Builder

	if d.Title != "" {
		b.WriteString("# ")
		b.WriteString(d.Title)
		b.WriteString("\n\n")
	}

	for _, s := range d.Sections {
		if s.Heading != "" {
			level := s.Level
			if level < 1 {
				level = 1
			}
			if level > 6 {
				level = 6
			}
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(" ")
			b.WriteString(s.Heading)
			b.WriteString("\n\n")
		}
		text := strings.TrimSpace(s.Text)
		if text != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

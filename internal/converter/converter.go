// Package converter turns source files into the neutral structured
// document representation. Backends are selected by file extension
// through a registry.
package converter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docfoundry/docfoundry/internal/docmodel"
)

// Metadata holds the document properties a backend exposes. Only keys
// the backend could actually determine are present.
type Metadata map[string]string

// Well-known metadata keys.
const (
	MetaTitle        = "title"
	MetaAuthor       = "author"
	MetaSubject      = "subject"
	MetaKeywords     = "keywords"
	MetaCreator      = "creator"
	MetaProducer     = "producer"
	MetaCreationDate = "creation_date"
	MetaModifiedDate = "modified_date"
	MetaLanguage     = "language"
)

// Result is the output of a conversion.
type Result struct {
	Document *docmodel.Document
	Metadata Metadata
}

// Converter converts one file format into a structured document.
type Converter interface {
	// Name returns the backend's identifier.
	Name() string

	// Extensions returns the lowercase extensions (with dot) this
	// backend handles.
	Extensions() []string

	// Convert reads the file at path and produces a structured document.
	Convert(ctx context.Context, path string) (*Result, error)
}

// Registry maps file extensions to converter backends.
type Registry struct {
	byExt map[string]Converter
}

// NewRegistry creates a registry over the given backends. Later
// backends win extension conflicts.
func NewRegistry(convs ...Converter) *Registry {
	r := &Registry{byExt: make(map[string]Converter)}
	for _, c := range convs {
		for _, ext := range c.Extensions() {
			r.byExt[strings.ToLower(ext)] = c
		}
	}
	return r
}

// DefaultRegistry returns a registry with all in-tree backends.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewTextConverter(),
		NewMarkdownConverter(),
		NewPDFConverter(),
	)
}

// ForPath returns the backend for the file's extension.
func (r *Registry) ForPath(path string) (Converter, error) {
	ext := strings.ToLower(extOf(path))
	c, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("no converter for extension %q", ext)
	}
	return c, nil
}

// Supported reports whether some backend handles the file's extension.
func (r *Registry) Supported(path string) bool {
	_, ok := r.byExt[strings.ToLower(extOf(path))]
	return ok
}

// Extensions returns the sorted list of supported extensions.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Convert resolves the backend for path and runs it.
func (r *Registry) Convert(ctx context.Context, path string) (*Result, error) {
	c, err := r.ForPath(path)
	if err != nil {
		return nil, err
	}
	return c.Convert(ctx, path)
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	slash := strings.LastIndexAny(path, "/\\")
	if idx < slash {
		return ""
	}
	return path[idx:]
}

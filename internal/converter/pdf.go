package converter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/docfoundry/docfoundry/internal/docmodel"
	"github.com/docfoundry/docfoundry/internal/fsutil"
)

// Regex patterns for heading detection in untagged PDFs.
// Matches patterns like "1. Introduction", "1.2 Background", all-caps
// lines, and "Chapter N" style titles.
var (
	pdfHeadingNumeric = regexp.MustCompile(`^(\d+\.?)+\s+[A-Za-z]`)
	pdfHeadingUpper   = regexp.MustCompile(`^[A-Z][A-Z\s]+$`)
	pdfHeadingTitle   = regexp.MustCompile(`(?i)^(Chapter|Section|Part|Appendix)\s+\w+`)
)

// PDFConverter extracts text and document properties from PDF files.
type PDFConverter struct{}

// NewPDFConverter creates a new PDF converter.
func NewPDFConverter() *PDFConverter {
	return &PDFConverter{}
}

// Name returns the backend's identifier.
func (c *PDFConverter) Name() string {
	return "pdf"
}

// Extensions returns the extensions this backend handles.
func (c *PDFConverter) Extensions() []string {
	return []string{".pdf"}
}

// Convert parses a PDF into a structured document keyed by detected
// headings, one pass over the page content streams.
func (c *PDFConverter) Convert(ctx context.Context, path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file; %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("empty PDF file: %s", path)
	}

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF; %w", err)
	}

	pageCount := pdfCtx.PageCount

	pages, err := c.extractPages(ctx, pdfCtx, pageCount)
	if err != nil {
		return nil, err
	}

	meta := c.readInfoDict(content, path, conf)

	doc := docmodel.New(meta[MetaTitle])
	doc.Pages = pageCount
	doc.Sections = c.buildSections(pages)

	if doc.Title == "" {
		doc.Title = fsutil.TitleFromPath(path)
	}

	if doc.IsEmpty() {
		return nil, fmt.Errorf("no extractable text in PDF: %s", path)
	}

	return &Result{Document: doc, Metadata: meta}, nil
}

// readInfoDict pulls the document information dictionary. Failures are
// tolerated; the result just carries fewer keys.
func (c *PDFConverter) readInfoDict(content []byte, path string, conf *model.Configuration) Metadata {
	meta := Metadata{}

	info, err := api.PDFInfo(bytes.NewReader(content), path, nil, false, conf)
	if err != nil || info == nil {
		return meta
	}

	set := func(key, val string) {
		val = strings.TrimSpace(val)
		if val != "" {
			meta[key] = val
		}
	}

	set(MetaTitle, info.Title)
	set(MetaAuthor, info.Author)
	set(MetaSubject, info.Subject)
	set(MetaCreator, info.Creator)
	set(MetaProducer, info.Producer)
	set(MetaCreationDate, info.CreationDate)
	set(MetaModifiedDate, info.ModificationDate)
	set(MetaKeywords, strings.Join(info.Keywords, ", "))

	return meta
}

// pdfPage holds extracted text from one page.
type pdfPage struct {
	pageNumber int
	text       string
}

// extractPages extracts text from all pages. Pages whose content
// streams cannot be read contribute empty text rather than failing the
// whole document.
func (c *PDFConverter) extractPages(ctx context.Context, pdfCtx *model.Context, pageCount int) ([]pdfPage, error) {
	var pages []pdfPage

	for i := 1; i <= pageCount; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		reader, err := pdfcpu.ExtractPageContent(pdfCtx, i)
		if err != nil {
			pages = append(pages, pdfPage{pageNumber: i})
			continue
		}

		contentBytes, err := io.ReadAll(reader)
		if err != nil {
			pages = append(pages, pdfPage{pageNumber: i})
			continue
		}

		pages = append(pages, pdfPage{
			pageNumber: i,
			text:       extractTextFromContentStream(contentBytes),
		})
	}

	return pages, nil
}

// extractTextFromContentStream extracts readable text from a PDF content
// stream. Content streams use PostScript-like operators; text lives in
// literal strings inside Tj/TJ operands. Line structure is kept so
// heading detection can work per line.
func extractTextFromContentStream(content []byte) string {
	var text strings.Builder
	str := string(content)

	inParens := 0
	segStart := 0
	var current strings.Builder

	for i := 0; i < len(str); i++ {
		ch := str[i]

		switch {
		case ch == '(' && (i == 0 || str[i-1] != '\\'):
			inParens++
			if inParens == 1 {
				if text.Len() > 0 {
					text.WriteString(separatorFor(str[segStart:i]))
				}
				current.Reset()
			}
		case ch == ')' && (i == 0 || str[i-1] != '\\'):
			if inParens > 0 {
				inParens--
				if inParens == 0 {
					text.WriteString(current.String())
					segStart = i + 1
				}
			}
		case inParens > 0:
			if ch == '\\' && i+1 < len(str) {
				next := str[i+1]
				switch next {
				case 'n':
					current.WriteString("\n")
					i++
				case 'r':
					current.WriteString("\r")
					i++
				case 't':
					current.WriteString("\t")
					i++
				case '(', ')', '\\':
					current.WriteByte(next)
					i++
				default:
					current.WriteByte(ch)
				}
			} else {
				current.WriteByte(ch)
			}
		}
	}

	return normalizeStreamText(text.String())
}

// separatorFor inspects the operators between two literal strings.
// The text-positioning operators Td, TD, T*, and ' start a new line;
// anything else continues the current one.
func separatorFor(ops string) string {
	for _, op := range []string{"T*", "TD", "Td", "'"} {
		if strings.Contains(ops, op) {
			return "\n"
		}
	}
	return " "
}

// normalizeStreamText collapses runs of horizontal whitespace within
// each line while keeping the line breaks themselves.
func normalizeStreamText(s string) string {
	s = strings.ReplaceAll(s, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// buildSections groups page text into heading-delimited sections.
func (c *PDFConverter) buildSections(pages []pdfPage) []docmodel.Section {
	var sections []docmodel.Section
	var current *docmodel.Section
	var headingStack []string
	var body strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(body.String())
		body.Reset()
		if current.Text != "" || current.Heading != "" {
			sections = append(sections, *current)
		}
		current = nil
	}

	for _, page := range pages {
		pageText := strings.TrimSpace(page.text)
		if pageText == "" {
			continue
		}

		for _, line := range strings.Split(pageText, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			isHeading, level := detectPDFHeading(line)
			if isHeading {
				flush()

				for len(headingStack) >= level {
					headingStack = headingStack[:len(headingStack)-1]
				}
				headingStack = append(headingStack, line)

				current = &docmodel.Section{
					Heading: line,
					Level:   level,
					Path:    strings.Join(headingStack, " > "),
					Page:    page.pageNumber,
				}
				continue
			}

			if current == nil {
				current = &docmodel.Section{Page: page.pageNumber}
			}
			body.WriteString(line)
			body.WriteString("\n")
		}
	}

	flush()

	return sections
}

// detectPDFHeading determines if a line is a heading and at what level.
func detectPDFHeading(line string) (bool, int) {
	if len(line) < 3 || len(line) > 200 {
		return false, 0
	}

	if pdfHeadingNumeric.MatchString(line) {
		// Nesting depth follows the numbering: "1.2.3 Details" is level 3.
		prefix := strings.Fields(line)[0]
		level := strings.Count(strings.TrimSuffix(prefix, "."), ".") + 1
		if level > 6 {
			level = 6
		}
		return true, level
	}

	if pdfHeadingTitle.MatchString(line) {
		return true, 1
	}

	if pdfHeadingUpper.MatchString(line) && len(strings.Fields(line)) <= 8 {
		return true, 1
	}

	return false, 0
}

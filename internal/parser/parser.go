package parser

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fjglira/qagen/internal/domain"
)

// Parser splits a text specification into headed sections.
type Parser interface {
	Parse(filePath string, content []byte) (*domain.ParsedDocument, error)
	SupportedExtensions() []string
}

// ParserRegistry maps file extensions to parsers.
type ParserRegistry interface {
	Register(parser Parser)
	ParserFor(extension string) (Parser, error)
}

// DefaultRegistry is a thread-safe parser registry with fallback support.
type DefaultRegistry struct {
	mu       sync.RWMutex
	parsers  map[string]Parser
	fallback Parser
}

// NewRegistry creates a new DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		parsers: make(map[string]Parser),
	}
}

// NewDefaultRegistry returns a registry with the Markdown and AsciiDoc
// parsers and plaintext as the fallback.
func NewDefaultRegistry() *DefaultRegistry {
	r := NewRegistry()
	r.Register(NewMarkdownParser())
	r.Register(NewAsciiDocParser())
	pt := NewPlaintextParser()
	r.Register(pt)
	r.SetFallback(pt)
	return r
}

// Register adds a parser to the registry for each of its supported extensions.
func (r *DefaultRegistry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.SupportedExtensions() {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		r.parsers[ext] = p
	}
}

// SetFallback sets the fallback parser for unregistered extensions.
func (r *DefaultRegistry) SetFallback(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

// ParserFor returns the parser registered for the given file extension.
// If no parser is found, it returns the fallback parser if set.
func (r *DefaultRegistry) ParserFor(extension string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	if p, ok := r.parsers[ext]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no parser registered for extension %q", extension)
}

// Outline renders a parsed document back to compact text: headings marked
// with '#' by level, each followed by its body.
func Outline(doc *domain.ParsedDocument) string {
	var b strings.Builder
	for _, s := range doc.Sections {
		if s.Heading != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			level := max(s.Level, 1)
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(" ")
			b.WriteString(s.Heading)
			b.WriteString("\n")
		}
		if body := strings.TrimSpace(s.Body); body != "" {
			b.WriteString(body)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// sectionBuilder accumulates sections while a parser walks a document.
type sectionBuilder struct {
	doc     *domain.ParsedDocument
	current *domain.Section
	body    []string
}

func newSectionBuilder(doc *domain.ParsedDocument) *sectionBuilder {
	return &sectionBuilder{doc: doc, current: &domain.Section{Line: 1}}
}

func (sb *sectionBuilder) heading(level int, text string, line int) {
	sb.flush()
	if sb.doc.Title == "" && level <= 1 {
		sb.doc.Title = text
	}
	sb.current = &domain.Section{Level: level, Heading: text, Line: line}
}

func (sb *sectionBuilder) line(s string) {
	sb.body = append(sb.body, s)
}

func (sb *sectionBuilder) flush() {
	body := strings.Trim(strings.Join(sb.body, "\n"), "\n")
	if sb.current.Heading != "" || strings.TrimSpace(body) != "" {
		sb.current.Body = body
		sb.doc.Sections = append(sb.doc.Sections, *sb.current)
	}
	sb.body = nil
}

func (sb *sectionBuilder) finish() *domain.ParsedDocument {
	sb.flush()
	if sb.doc.Title == "" && len(sb.doc.Sections) > 0 {
		sb.doc.Title = sb.doc.Sections[0].Heading
	}
	return sb.doc
}

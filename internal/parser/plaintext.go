package parser

import (
	"strings"

	"github.com/fjglira/qagen/internal/domain"
)

// PlaintextParser parses generic text files. A line underlined with === or
// --- starts a section; everything else is body text.
type PlaintextParser struct{}

// NewPlaintextParser creates a new PlaintextParser.
func NewPlaintextParser() *PlaintextParser {
	return &PlaintextParser{}
}

// SupportedExtensions returns the file extensions this parser handles.
// The plaintext parser acts as a fallback, so it supports common text extensions.
func (p *PlaintextParser) SupportedExtensions() []string {
	return []string{".txt", ".text", ".rst"}
}

// Parse splits a plaintext document at underlined headings.
func (p *PlaintextParser) Parse(filePath string, content []byte) (*domain.ParsedDocument, error) {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	parsed := &domain.ParsedDocument{FilePath: filePath, FileType: "plaintext"}
	sb := newSectionBuilder(parsed)

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		if i+1 < len(lines) {
			text := strings.TrimSpace(line)
			underline := strings.TrimSpace(lines[i+1])
			if text != "" && len(underline) >= 3 && (allChar(underline, '=') || allChar(underline, '-')) {
				level := 1
				if allChar(underline, '-') {
					level = 2
				}
				sb.heading(level, text, i+1)
				i++
				continue
			}
		}
		sb.line(line)
	}
	return sb.finish(), nil
}

// allChar checks if s consists entirely of character c.
func allChar(s string, c byte) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != c {
			return false
		}
	}
	return true
}

package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fjglira/qagen/internal/domain"
)

// AsciiDocParser parses AsciiDoc documents using regex patterns.
type AsciiDocParser struct{}

// NewAsciiDocParser creates a new AsciiDocParser.
func NewAsciiDocParser() *AsciiDocParser {
	return &AsciiDocParser{}
}

// SupportedExtensions returns the file extensions this parser handles.
func (p *AsciiDocParser) SupportedExtensions() []string {
	return []string{".adoc", ".asciidoc"}
}

var (
	// Matches = Title, == Heading, === Subheading, etc.
	asciidocHeadingRe = regexp.MustCompile(`^(={1,6})\s+(.+)$`)
	// Matches ----, ...., ****, ____ block delimiters
	asciidocDelimRe = regexp.MustCompile(`^(-{4,}|\.{4,}|\*{4,}|_{4,})\s*$`)
	// Matches [source,lang], [NOTE], [cols="1,2"] and similar block attributes
	asciidocAttrRe = regexp.MustCompile(`^\[[^\]]*\]\s*$`)
	// Matches :name: value document attributes
	asciidocDocAttrRe = regexp.MustCompile(`^:[\w-]+:.*$`)
	// Matches * item, ** item, . item, .. item
	asciidocListRe = regexp.MustCompile(`^(\*{1,5}|\.{1,5})\s+(.+)$`)
	// Matches NOTE: text and friends
	asciidocAdmonitionRe = regexp.MustCompile(`^(NOTE|TIP|IMPORTANT|WARNING|CAUTION):\s*(.*)$`)
)

// Parse splits an AsciiDoc document into sections at each heading. Lists are
// rewritten to Markdown-style markers; ordered items are numbered.
// Comments and attribute lines are dropped. Table cells are kept as rows.
func (p *AsciiDocParser) Parse(filePath string, content []byte) (*domain.ParsedDocument, error) {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	parsed := &domain.ParsedDocument{FilePath: filePath, FileType: "asciidoc"}
	sb := newSectionBuilder(parsed)

	inComment := false
	counters := map[int]int{}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed == "////" {
			inComment = !inComment
			continue
		}
		if inComment || strings.HasPrefix(trimmed, "//") {
			continue
		}

		if m := asciidocHeadingRe.FindStringSubmatch(line); m != nil {
			sb.heading(len(m[1]), strings.TrimSpace(m[2]), i+1)
			counters = map[int]int{}
			continue
		}

		switch {
		case asciidocDelimRe.MatchString(trimmed),
			asciidocAttrRe.MatchString(trimmed),
			asciidocDocAttrRe.MatchString(trimmed),
			trimmed == "|===":
			continue
		}

		if m := asciidocListRe.FindStringSubmatch(trimmed); m != nil {
			depth := len(m[1])
			indent := strings.Repeat("  ", depth-1)
			if m[1][0] == '.' {
				counters[depth]++
				sb.line(indent + strconv.Itoa(counters[depth]) + ". " + m[2])
			} else {
				sb.line(indent + "- " + m[2])
			}
			continue
		}
		if trimmed == "" {
			counters = map[int]int{}
		}

		if m := asciidocAdmonitionRe.FindStringSubmatch(trimmed); m != nil {
			sb.line(m[1] + ": " + m[2])
			continue
		}
		if strings.HasPrefix(trimmed, "|") {
			cells := strings.Split(strings.TrimPrefix(trimmed, "|"), "|")
			for n := range cells {
				cells[n] = strings.TrimSpace(cells[n])
			}
			sb.line("| " + strings.Join(cells, " | ") + " |")
			continue
		}
		sb.line(strings.TrimRight(line, " \t"))
	}

	return sb.finish(), nil
}

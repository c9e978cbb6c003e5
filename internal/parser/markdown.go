package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/fjglira/qagen/internal/domain"
)

// MarkdownParser parses Markdown documents using goldmark.
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser creates a new MarkdownParser with GFM tables and task lists.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		md: goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.TaskList)),
	}
}

// SupportedExtensions returns the file extensions this parser handles.
func (p *MarkdownParser) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// Parse splits a Markdown document into sections at each heading. Paragraphs,
// lists, tables and code are kept as plain text lines.
func (p *MarkdownParser) Parse(filePath string, content []byte) (*domain.ParsedDocument, error) {
	doc := p.md.Parser().Parse(text.NewReader(content))
	parsed := &domain.ParsedDocument{FilePath: filePath, FileType: "markdown"}
	sb := newSectionBuilder(parsed)

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			sb.heading(h.Level, inlineText(h, content), nodeLine(h, content))
			continue
		}
		for _, l := range blockLines(n, content, "") {
			sb.line(l)
		}
		sb.line("")
	}
	return sb.finish(), nil
}

// blockLines renders a block node as text lines.
func blockLines(n ast.Node, src []byte, indent string) []string {
	switch node := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		var out []string
		for _, l := range strings.Split(inlineText(node, src), "\n") {
			out = append(out, indent+l)
		}
		return out

	case *ast.List:
		var out []string
		num := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "- "
			if node.IsOrdered() {
				marker = fmt.Sprintf("%d. ", num)
				num++
			}
			first := true
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				sub := indent + "  "
				if _, nested := c.(*ast.List); !nested && first {
					sub = ""
				}
				lines := blockLines(c, src, sub)
				if first && len(lines) > 0 {
					lines[0] = indent + marker + strings.TrimSpace(lines[0])
					first = false
				}
				out = append(out, lines...)
			}
		}
		return out

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		var out []string
		for _, l := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
			out = append(out, indent+"    "+l)
		}
		return out

	case *ast.Blockquote:
		var out []string
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			for _, l := range blockLines(c, src, "") {
				out = append(out, indent+"> "+l)
			}
		}
		return out

	case *east.Table:
		var out []string
		for row := node.FirstChild(); row != nil; row = row.NextSibling() {
			var cells []string
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, strings.TrimSpace(inlineText(cell, src)))
			}
			out = append(out, indent+"| "+strings.Join(cells, " | ")+" |")
		}
		return out

	case *ast.ThematicBreak, *ast.HTMLBlock:
		return nil
	}

	var out []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = append(out, blockLines(c, src, indent)...)
	}
	return out
}

// inlineText concatenates the inline content of n.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Segment.Value(src))
				switch {
				case t.HardLineBreak():
					buf.WriteByte('\n')
				case t.SoftLineBreak():
					buf.WriteByte('\n')
				}
			case *ast.String:
				buf.Write(t.Value)
			case *ast.AutoLink:
				buf.Write(t.URL(src))
			case *east.TaskCheckBox:
				if t.IsChecked {
					buf.WriteString("[x] ")
				} else {
					buf.WriteString("[ ] ")
				}
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return buf.String()
}

// nodeLine returns the 1-based line of a block node.
func nodeLine(n ast.Node, src []byte) int {
	if n.Lines().Len() > 0 {
		return lineNumber(src, n.Lines().At(0).Start)
	}
	if t, ok := n.FirstChild().(*ast.Text); ok {
		return lineNumber(src, t.Segment.Start)
	}
	return 0
}

// lineNumber calculates the 1-based line number for a byte offset.
func lineNumber(content []byte, offset int) int {
	return bytes.Count(content[:offset], []byte("\n")) + 1
}

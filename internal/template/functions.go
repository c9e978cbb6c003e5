package template

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"text/template"

	"github.com/fjglira/qagen/internal/domain"
)

// CustomFuncMap returns the custom template functions available in templates.
func CustomFuncMap() template.FuncMap {
	return template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"toLower":   strings.ToLower,
		"toUpper":   strings.ToUpper,
		"replace":   strings.ReplaceAll,
		"trimSpace": strings.TrimSpace,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"join":      strings.Join,
		"indent": func(spaces int, s string) string {
			pad := strings.Repeat(" ", spaces)
			lines := strings.Split(s, "\n")
			for i, line := range lines {
				if line != "" {
					lines[i] = pad + line
				}
			}
			return strings.Join(lines, "\n")
		},
		"cell":   Cell,
		"csvRow": CSVRow,
		"fields": Fields,
	}
}

// Cell makes a value safe for a single Markdown table cell: pipes are
// escaped and line breaks become <br>.
func Cell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}

// CSVRow encodes one CSV record, including the trailing newline.
func CSVRow(values []string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(values)
	w.Flush()
	return buf.String()
}

// Fields returns a record's cells in column order.
func Fields(r domain.TestCaseRecord) []string {
	return []string{
		strconv.Itoa(r.No), r.Title, r.Depth1, r.Depth2, r.Depth3,
		r.Precondition, r.Steps, r.ExpectedResult,
	}
}

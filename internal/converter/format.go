package converter

import (
	"regexp"
	"strings"
)

var (
	// A "2." marker preceded by text on the same line, with or without a
	// space either side. A digit after the period means a decimal.
	inlineMarkerRe = regexp.MustCompile(`([^\n\d])[ \t]*(\d+\.)([^\d\n])`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
	bareMarkerRe   = regexp.MustCompile(`^\d+\.$`)
)

// FormatList trims text and starts every numbered-list marker on its own line.
func FormatList(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// Applied twice: adjacent markers share the separating character.
	s = inlineMarkerRe.ReplaceAllString(s, "$1\n$2$3")
	s = inlineMarkerRe.ReplaceAllString(s, "$1\n$2$3")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	return blankRunRe.ReplaceAllString(s, "\n\n")
}

// FormatSteps is FormatList plus the house rule that step lines carry no
// trailing period.
func FormatSteps(s string) string {
	s = FormatList(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if bareMarkerRe.MatchString(l) || strings.HasSuffix(l, "..") {
			continue
		}
		lines[i] = strings.TrimSuffix(l, ".")
	}
	return strings.Join(lines, "\n")
}

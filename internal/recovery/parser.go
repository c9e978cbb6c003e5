package recovery

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// maxScanIterations bounds the balanced scan so pathological input always terminates.
const maxScanIterations = 10000

var fenceRe = regexp.MustCompile("```[a-zA-Z]*")

// StripFences removes markdown code fence markers, keeping their content.
func StripFences(text string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
}

// ParseDirect strictly parses a complete response. ok is false when the text
// (after fence stripping) is not valid JSON; callers then fall back to Recover.
func ParseDirect(text string) (Result, bool) {
	text = StripFences(text)
	if text == "" || !gjson.Valid(text) {
		return Result{}, false
	}

	root := gjson.Parse(text)
	var res Result
	switch {
	case root.IsArray():
		for _, item := range root.Array() {
			if item.IsObject() {
				res.Records = append(res.Records, recordFromJSON(item))
			}
		}
	case root.IsObject():
		if isTestCase(root) {
			res.Records = append(res.Records, recordFromJSON(root))
			return res, true
		}
		collectEnvelope(root, &res, false)
	default:
		return Result{}, false
	}
	return res, true
}

// Recover extracts test cases from text that is not valid JSON: truncated
// output, output wrapped in prose, or several concatenated fragments.
//
// It first scans for brace-balanced objects and parses each on its own. Only
// when that finds nothing does it pull flat fields out of {"no": N, ...}
// chunks with regular expressions.
func Recover(text string) Result {
	text = StripFences(text)

	res := scanBalanced(text)
	if len(res.Records) > 0 {
		return res
	}

	res.Records = extractByFields(text)
	return res
}

// scanBalanced walks the text, parsing every brace-balanced object it can close.
func scanBalanced(text string) Result {
	var res Result
	pos := 0
	for iter := 0; pos < len(text) && iter < maxScanIterations; iter++ {
		rel := strings.IndexByte(text[pos:], '{')
		if rel < 0 {
			break
		}
		start := pos + rel

		end := matchBrace(text, start)
		if end < 0 {
			// Unbalanced, probably truncated: look inside it.
			pos = start + 1
			continue
		}
		pos = end + 1

		candidate := text[start : end+1]
		if !gjson.Valid(candidate) {
			continue
		}
		obj := gjson.Parse(candidate)
		if isTestCase(obj) {
			res.Records = append(res.Records, recordFromJSON(obj))
			continue
		}
		collectEnvelope(obj, &res, true)
	}
	return res
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside string literals (including escaped quotes) are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// isTestCase reports whether obj has a numeric "no" and a title or steps.
func isTestCase(obj gjson.Result) bool {
	if lookup(obj, "no").Type != gjson.Number {
		return false
	}
	return lookup(obj, FieldTitle).Exists() || lookup(obj, FieldSteps).Exists()
}

// collectEnvelope flattens a {"testCases": [...], "questions": [...], "summary": ""}
// object into res. With requireNo only elements carrying a "no" are kept.
func collectEnvelope(obj gjson.Result, res *Result, requireNo bool) {
	cases := lookup(obj, "testCases")
	if !cases.IsArray() {
		return
	}
	for _, item := range cases.Array() {
		if !item.IsObject() {
			continue
		}
		if requireNo && !lookup(item, "no").Exists() {
			continue
		}
		res.Records = append(res.Records, recordFromJSON(item))
	}
	res.Questions = append(res.Questions, stringArray(lookup(obj, "questions"))...)
	if s := lookup(obj, "summary"); s.Type == gjson.String && res.Summary == "" {
		res.Summary = s.String()
	}
	if lookup(obj, "hasMore").Bool() {
		res.HasMore = true
	}
}

var (
	chunkRe = regexp.MustCompile(`(?is)\{\s*"no"\s*:\s*"?(\d+)"?(.*?)\}`)

	fieldRes = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp, len(textFields))
		for _, f := range textFields {
			m[f] = regexp.MustCompile(`(?i)"` + f + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
		}
		return m
	}()
)

// extractByFields is the regex fallback for output too broken to balance.
func extractByFields(text string) []RawRecord {
	var out []RawRecord
	for _, m := range chunkRe.FindAllStringSubmatch(text, -1) {
		no, ok := atoi(m[1])
		if !ok {
			continue
		}
		rec := RawRecord{No: &no, Fields: make(map[string]string)}
		for _, f := range textFields {
			if fm := fieldRes[f].FindStringSubmatch(m[2]); fm != nil {
				rec.Fields[f] = unescape(fm[1])
			}
		}
		if strings.TrimSpace(rec.Fields[FieldTitle]) == "" && strings.TrimSpace(rec.Fields[FieldSteps]) == "" {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func atoi(s string) (int, bool) {
	n := 0
	if s == "" || len(s) > 9 {
		return 0, false
	}
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n, true
}

// unescape resolves the JSON escapes that matter for display text.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case '/':
			b.WriteByte('/')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

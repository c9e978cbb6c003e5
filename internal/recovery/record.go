package recovery

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Canonical field names of a test-case record. Lookups in model output are
// case-insensitive, so "Title" and "TITLE" both land in FieldTitle.
const (
	FieldTitle          = "title"
	FieldDepth1         = "depth1"
	FieldDepth2         = "depth2"
	FieldDepth3         = "depth3"
	FieldPrecondition   = "precondition"
	FieldSteps          = "steps"
	FieldExpectedResult = "expectedresult"
)

// textFields are the string fields recovered from each record.
var textFields = []string{
	FieldTitle, FieldDepth1, FieldDepth2, FieldDepth3,
	FieldPrecondition, FieldSteps, FieldExpectedResult,
}

// RawRecord is a test case as the model emitted it, before normalization.
// No is nil when the model omitted it or it was not numeric. Fields holds
// every scalar field keyed by its lowercased name.
type RawRecord struct {
	No     *int
	Fields map[string]string
}

// Get returns a field by case-insensitive name.
func (r RawRecord) Get(name string) string {
	return r.Fields[strings.ToLower(name)]
}

// Result is everything recovered from one model response.
type Result struct {
	Records   []RawRecord
	Questions []string
	Summary   string
	HasMore   bool
}

// lookup finds a key on a JSON object ignoring case.
func lookup(obj gjson.Result, name string) gjson.Result {
	if v := obj.Get(name); v.Exists() {
		return v
	}
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if strings.EqualFold(k.String(), name) {
			found = v
			return false
		}
		return true
	})
	return found
}

// recordFromJSON converts one parsed object into a RawRecord.
func recordFromJSON(obj gjson.Result) RawRecord {
	rec := RawRecord{Fields: make(map[string]string)}
	obj.ForEach(func(k, v gjson.Result) bool {
		key := strings.ToLower(k.String())
		switch v.Type {
		case gjson.String:
			rec.Fields[key] = v.String()
		case gjson.Number:
			rec.Fields[key] = v.Raw
		case gjson.JSON:
			// Models sometimes send steps as an array of lines.
			if v.IsArray() {
				var lines []string
				for _, item := range v.Array() {
					lines = append(lines, item.String())
				}
				rec.Fields[key] = strings.Join(lines, "\n")
			}
		}
		return true
	})

	if no, ok := numericNo(lookup(obj, "no")); ok {
		rec.No = &no
	}
	return rec
}

// numericNo accepts numbers and numeric strings ("3").
func numericNo(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		return int(v.Int()), true
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.String()))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func stringArray(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, item := range v.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

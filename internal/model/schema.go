package model

import "google.golang.org/genai"

// TestCaseSchema is the structured-output schema for a phase response.
// The expansion variant adds a hasMore flag the model sets when it has
// further cases to give.
func TestCaseSchema(expansion bool) *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}

	record := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"no":             {Type: genai.TypeNumber, Description: "Sequence number"},
			"title":          str("Short test case title"),
			"depth1":         str("Top-level screen or area"),
			"depth2":         str("Feature within the area"),
			"depth3":         str("Detail or element"),
			"precondition":   str("State required before the steps"),
			"steps":          str("Numbered steps, one per line"),
			"expectedResult": str("Observable expected outcome"),
		},
		Required:         []string{"no", "title", "steps", "expectedResult"},
		PropertyOrdering: []string{"no", "depth1", "depth2", "depth3", "title", "precondition", "steps", "expectedResult"},
	}

	root := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"testCases": {Type: genai.TypeArray, Items: record},
			"questions": {Type: genai.TypeArray, Items: str("Question about unclear requirements")},
			"summary":   str("One paragraph summary of what was covered"),
		},
		Required: []string{"testCases"},
	}
	if expansion {
		root.Properties["hasMore"] = &genai.Schema{
			Type:        genai.TypeBoolean,
			Description: "True when more distinct cases remain to be written",
		}
	}
	return root
}

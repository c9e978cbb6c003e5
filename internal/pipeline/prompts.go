package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language/display"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/domain"
)

// writingRules are sent with every call so all phases share one house style.
const writingRules = `Writing rules:
- One test case verifies exactly one thing.
- precondition: a numbered list of states ("1. Logged in", "2. Cart has one item").
- steps: a numbered list of short imperative actions, one per line, without trailing periods.
- expectedResult: the observable outcome in passive voice ("Error message is displayed").
- depth1/depth2/depth3: screen, feature and element, most general first. Reuse the same wording for the same screen.
- Only describe what the supplied screens and text support. Put open doubts in "questions", not in test cases.
- Respond with a single JSON object: {"testCases": [...], "questions": [...], "summary": "..."}.`

func (o *Orchestrator) systemInstruction() string {
	var b strings.Builder
	b.WriteString("You are a senior QA engineer writing manual test cases from product designs and specifications.\n\n")
	b.WriteString(writingRules)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Write every text field in %s.\n", display.English.Tags().Name(o.lang))
	if note := strings.TrimSpace(o.cfg.StyleNote); note != "" {
		fmt.Fprintf(&b, "\nAdditional style guidance:\n%s\n", note)
	}
	return b.String()
}

func draftPrompt(phase config.PhaseConfig, lastNo int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis phase: %s\n", phase.Name)
	fmt.Fprintf(&b, "Goal: %s\n\n", phase.Goal)
	b.WriteString("Write test cases for this goal only, covering every screen and text block above.\n")
	if lastNo > 0 {
		fmt.Fprintf(&b, "Earlier phases used numbers up to %d; start numbering at %d.\n", lastNo, lastNo+1)
	} else {
		b.WriteString("Start numbering at 1.\n")
	}
	if phase.ExpansionPages > 0 {
		b.WriteString("Set \"hasMore\" to true if further distinct cases remain for this goal.\n")
	}
	return b.String()
}

func auditPrompt(phase config.PhaseConfig, draft []domain.TestCaseRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis phase: %s (review)\n", phase.Name)
	fmt.Fprintf(&b, "Goal: %s\n\n", phase.Goal)
	b.WriteString("Below is a draft. Compare it against the screens and text above. ")
	b.WriteString("Fix wrong labels, copy and values; add visible elements the draft missed; split cases that verify more than one thing. ")
	b.WriteString("Return the complete corrected set, keeping the existing numbers where a case is unchanged.\n\n")
	b.WriteString("Draft:\n")
	b.WriteString(recordsJSON(draft))
	return b.String()
}

func verifyPrompt(phase config.PhaseConfig, draft []domain.TestCaseRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis phase: %s (verification)\n", phase.Name)
	fmt.Fprintf(&b, "Goal: %s\n\n", phase.Goal)
	b.WriteString("Below is a draft. Check each case against the screens and text above. ")
	b.WriteString("Drop every case whose rule or behaviour is not supported by the content; do not invent replacements. ")
	b.WriteString("Return the remaining cases unchanged with their original numbers, and move doubts to \"questions\".\n\n")
	b.WriteString("Draft:\n")
	b.WriteString(recordsJSON(draft))
	return b.String()
}

func expansionPrompt(phase config.PhaseConfig, have []domain.TestCaseRecord, lastNo, page int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis phase: %s (additional cases, round %d)\n", phase.Name, page)
	fmt.Fprintf(&b, "Goal: %s\n\n", phase.Goal)
	b.WriteString("These cases already exist, by title:\n")
	for _, r := range have {
		fmt.Fprintf(&b, "- %s\n", r.Title)
	}
	b.WriteString("\nWrite only new cases that do not repeat the ones above. ")
	fmt.Fprintf(&b, "Start numbering at %d. ", lastNo+1)
	b.WriteString("Set \"hasMore\" to true only if still more distinct cases remain after these.\n")
	return b.String()
}

func refinePrompt(current []domain.TestCaseRecord, qa []domain.QAPair, styleNote string) string {
	var b strings.Builder
	b.WriteString("Below is the current test case set and answers to questions raised earlier.\n")
	b.WriteString("Regenerate the complete set from scratch so it honours every answer. ")
	b.WriteString("Keep cases that are still correct, rewrite those the answers change, drop those the answers rule out and add those the answers call for.\n\n")

	b.WriteString("Answers:\n")
	for i, p := range qa {
		fmt.Fprintf(&b, "%d. Q: %s\n   A: %s\n", i+1, strings.TrimSpace(p.Question), strings.TrimSpace(p.Answer))
	}
	if note := strings.TrimSpace(styleNote); note != "" {
		fmt.Fprintf(&b, "\nStyle guidance:\n%s\n", note)
	}
	b.WriteString("\nCurrent set:\n")
	b.WriteString(recordsJSON(current))
	return b.String()
}

// promptRecord is the record shape embedded in prompts; IDs stay local.
type promptRecord struct {
	No             int    `json:"no"`
	Depth1         string `json:"depth1,omitempty"`
	Depth2         string `json:"depth2,omitempty"`
	Depth3         string `json:"depth3,omitempty"`
	Title          string `json:"title"`
	Precondition   string `json:"precondition,omitempty"`
	Steps          string `json:"steps"`
	ExpectedResult string `json:"expectedResult"`
}

func recordsJSON(recs []domain.TestCaseRecord) string {
	out := make([]promptRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, promptRecord{
			No:             r.No,
			Depth1:         r.Depth1,
			Depth2:         r.Depth2,
			Depth3:         r.Depth3,
			Title:          r.Title,
			Precondition:   r.Precondition,
			Steps:          r.Steps,
			ExpectedResult: r.ExpectedResult,
		})
	}
	data, err := json.MarshalIndent(map[string]any{"testCases": out}, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

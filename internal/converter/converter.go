package converter

import (
	"strings"

	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/recovery"
)

// Converter transforms raw model records into TestCaseRecords.
type Converter interface {
	Convert(raw []recovery.RawRecord) []domain.TestCaseRecord
}

// Target field names used as alias-table keys.
const (
	FieldTitle          = "title"
	FieldDepth1         = "depth1"
	FieldDepth2         = "depth2"
	FieldDepth3         = "depth3"
	FieldPrecondition   = "precondition"
	FieldSteps          = "steps"
	FieldExpectedResult = "expected_result"
)

// DefaultAliases maps each record field to the source keys tried in order.
// Keys are lowercase; raw records are already case-folded.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		FieldTitle:          {recovery.FieldTitle, "name", "testcase", "case"},
		FieldDepth1:         {recovery.FieldDepth1, "category1", "category", "screen"},
		FieldDepth2:         {recovery.FieldDepth2, "category2", "feature"},
		FieldDepth3:         {recovery.FieldDepth3, "category3"},
		FieldPrecondition:   {recovery.FieldPrecondition, "preconditions", "pre"},
		FieldSteps:          {recovery.FieldSteps, "step", "procedure"},
		FieldExpectedResult: {recovery.FieldExpectedResult, "expected_result", "expected", "result"},
	}
}

// DefaultConverter implements Converter.
type DefaultConverter struct {
	aliases map[string][]string
}

// NewConverter creates a new DefaultConverter. A nil alias table uses DefaultAliases.
func NewConverter(aliases map[string][]string) *DefaultConverter {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	return &DefaultConverter{aliases: aliases}
}

// Convert normalizes raw records in order. Each output record gets a fresh ID;
// No is copied when the model supplied one and left zero otherwise.
// Records with neither a title nor steps are dropped.
func (c *DefaultConverter) Convert(raw []recovery.RawRecord) []domain.TestCaseRecord {
	var out []domain.TestCaseRecord
	for _, r := range raw {
		rec, ok := c.convertOne(r)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (c *DefaultConverter) convertOne(r recovery.RawRecord) (domain.TestCaseRecord, bool) {
	rec := domain.NewRecord()
	if r.No != nil {
		rec.No = *r.No
	}

	rec.Title = strings.TrimSpace(resolveAttribute(r.Fields, c.aliases[FieldTitle]))
	rec.Depth1 = strings.TrimSpace(resolveAttribute(r.Fields, c.aliases[FieldDepth1]))
	rec.Depth2 = strings.TrimSpace(resolveAttribute(r.Fields, c.aliases[FieldDepth2]))
	rec.Depth3 = strings.TrimSpace(resolveAttribute(r.Fields, c.aliases[FieldDepth3]))
	rec.Precondition = FormatList(resolveAttribute(r.Fields, c.aliases[FieldPrecondition]))
	rec.Steps = FormatSteps(resolveAttribute(r.Fields, c.aliases[FieldSteps]))
	rec.ExpectedResult = FormatList(resolveAttribute(r.Fields, c.aliases[FieldExpectedResult]))

	if rec.Title == "" && rec.Steps == "" {
		return domain.TestCaseRecord{}, false
	}
	return rec, true
}

// Normalize re-applies text normalization to records that already have the
// canonical shape, such as a set loaded back from a JSON export.
func Normalize(records []domain.TestCaseRecord) []domain.TestCaseRecord {
	out := make([]domain.TestCaseRecord, 0, len(records))
	for _, r := range records {
		r.Title = strings.TrimSpace(r.Title)
		r.Depth1 = strings.TrimSpace(r.Depth1)
		r.Depth2 = strings.TrimSpace(r.Depth2)
		r.Depth3 = strings.TrimSpace(r.Depth3)
		r.Precondition = FormatList(r.Precondition)
		r.Steps = FormatSteps(r.Steps)
		r.ExpectedResult = FormatList(r.ExpectedResult)
		if r.ID == "" {
			r.ID = domain.NewRecord().ID
		}
		out = append(out, r)
	}
	return out
}

// resolveAttribute looks up a value using a list of possible key names.
func resolveAttribute(attrs map[string]string, keys []string) string {
	for _, key := range keys {
		if val, ok := attrs[key]; ok && strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

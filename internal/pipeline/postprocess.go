package pipeline

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/fjglira/qagen/internal/domain"
)

// PostProcess returns a copy of recs stably sorted by (Depth1, Depth2, Depth3)
// under the collation for lang, numbered 1..N in that order.
func PostProcess(recs []domain.TestCaseRecord, lang language.Tag) []domain.TestCaseRecord {
	out := slices.Clone(recs)
	col := collate.New(lang)

	slices.SortStableFunc(out, func(a, b domain.TestCaseRecord) int {
		if c := col.CompareString(a.Depth1, b.Depth1); c != 0 {
			return c
		}
		if c := col.CompareString(a.Depth2, b.Depth2); c != 0 {
			return c
		}
		return col.CompareString(a.Depth3, b.Depth3)
	})

	for i := range out {
		out[i].No = i + 1
	}
	return out
}

// PostProcess applies PostProcess with the orchestrator's language.
func (o *Orchestrator) PostProcess(recs []domain.TestCaseRecord) []domain.TestCaseRecord {
	return PostProcess(recs, o.lang)
}

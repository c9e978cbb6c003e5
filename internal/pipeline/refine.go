package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/model"
)

// RefineWithAnswers regenerates the whole record set in one call, honouring
// the answered questions. The result replaces current; on error the caller
// keeps its existing set.
func (o *Orchestrator) RefineWithAnswers(ctx context.Context, items []domain.ContentItem, current []domain.TestCaseRecord, qa []domain.QAPair, styleNote string) (*Outcome, error) {
	if styleNote == "" {
		styleNote = o.cfg.StyleNote
	}

	o.log.WithFields(logrus.Fields{
		"current": len(current),
		"answers": len(qa),
	}).Info("Refining test cases with answers")

	text, err := o.InvokeModel(ctx, model.Request{
		Items:             items,
		Prompt:            refinePrompt(current, qa, styleNote),
		SystemInstruction: o.systemInstruction(),
		UseSchema:         true,
	})
	if err != nil {
		return nil, err
	}

	res := o.Parse(text)
	if len(res.Records) == 0 {
		return nil, domain.NewErrorWithSuggestion("pipeline", "refine", "refinement produced no test cases",
			"the previous set is unchanged; try again or rephrase the answers", domain.ErrGenerationFailed)
	}

	return &Outcome{
		Records:   o.PostProcess(res.Records),
		Questions: res.Questions,
		Summary:   res.Summary,
		Phases:    []PhaseStat{{Name: "Refine", Records: len(res.Records), Rounds: 1}},
	}, nil
}

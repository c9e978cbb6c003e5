package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/converter"
	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/model"
	"github.com/fjglira/qagen/internal/retry"
)

// Outcome is the reconciled result of a generation run.
type Outcome struct {
	Records   []domain.TestCaseRecord
	Questions []string
	Summary   string
	Phases    []PhaseStat
}

// PhaseStat records what one phase contributed.
type PhaseStat struct {
	Name     string
	Records  int
	Rounds   int // model calls that returned usable output
	Skipped  bool
	Err      error
	Duration time.Duration
}

// Orchestrator drives the ordered analysis phases against a Model.
// It holds no per-run state; each Run owns its accumulators.
type Orchestrator struct {
	model    model.Model
	conv     converter.Converter
	cfg      config.PipelineConfig
	modelCfg config.ModelConfig
	lang     language.Tag
	log      logrus.FieldLogger
	sleep    retry.SleepFunc
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithSleep replaces the delay used between model retries.
func WithSleep(fn retry.SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// NewOrchestrator creates an Orchestrator. An unparseable language falls back to Korean.
func NewOrchestrator(m model.Model, conv converter.Converter, cfg *config.Config, log logrus.FieldLogger, opts ...Option) *Orchestrator {
	tag, err := language.Parse(cfg.Pipeline.Language)
	if err != nil {
		tag = language.Korean
	}
	o := &Orchestrator{
		model:    m,
		conv:     conv,
		cfg:      cfg.Pipeline,
		modelCfg: cfg.Model,
		lang:     tag,
		log:      log.WithField("component", "pipeline"),
		sleep:    retry.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes every configured phase in order and returns the post-processed
// record set. A phase that fails or yields nothing is logged and skipped;
// cancellation aborts the whole run.
func (o *Orchestrator) Run(ctx context.Context, items []domain.ContentItem) (*Outcome, error) {
	if len(items) == 0 {
		return nil, domain.NewError("pipeline", "", "no content items to analyse", domain.ErrNoContent)
	}

	phases := o.cfg.Phases
	if len(phases) == 0 {
		phases = config.DefaultPhases()
	}

	out := &Outcome{}
	var (
		records   []domain.TestCaseRecord
		summaries []string
		seenQ     = make(map[string]bool)
		lastNo    int
	)

	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log := o.log.WithFields(logrus.Fields{
			"phase": phase.Name,
			"index": i + 1,
			"total": len(phases),
		})
		log.Info("Starting phase")

		start := time.Now()
		res, rounds, err := o.runPhase(ctx, items, phase, lastNo)
		stat := PhaseStat{Name: phase.Name, Rounds: rounds, Duration: time.Since(start)}

		if err != nil {
			if domain.IsCancellation(ctx, err) {
				return nil, err
			}
			log.WithError(err).Warn("Phase failed, continuing with next phase")
			stat.Err = err
			stat.Skipped = true
			out.Phases = append(out.Phases, stat)
			continue
		}
		if len(res.Records) == 0 {
			log.Warn("Phase produced no test cases, skipping")
			stat.Skipped = true
			out.Phases = append(out.Phases, stat)
			continue
		}

		records = append(records, res.Records...)
		lastNo = nextHint(lastNo, res.Records)
		for _, q := range res.Questions {
			if !seenQ[q] {
				seenQ[q] = true
				out.Questions = append(out.Questions, q)
			}
		}
		if s := strings.TrimSpace(res.Summary); s != "" {
			summaries = append(summaries, phase.Name+": "+s)
		}

		stat.Records = len(res.Records)
		out.Phases = append(out.Phases, stat)
		log.WithField("records", stat.Records).Info("Phase complete")
	}

	out.Records = PostProcess(records, o.lang)
	out.Summary = strings.Join(summaries, "\n")
	if len(out.Records) == 0 {
		return out, domain.NewErrorWithSuggestion("pipeline", "", "no phase produced any test cases",
			"check the model output with --verbose or provide clearer input", domain.ErrGenerationFailed)
	}
	return out, nil
}

// runPhase performs DRAFT, the optional AUDIT or VERIFY step, and any
// EXPANSION rounds for one phase. The records it returns are normalized.
func (o *Orchestrator) runPhase(ctx context.Context, items []domain.ContentItem, phase config.PhaseConfig, lastNo int) (domain.PhaseResult, int, error) {
	log := o.log.WithField("phase", phase.Name)
	system := o.systemInstruction()
	rounds := 0

	text, err := o.InvokeModel(ctx, model.Request{
		Items:             items,
		Prompt:            draftPrompt(phase, lastNo),
		SystemInstruction: system,
		UseSchema:         true,
		Expansion:         phase.ExpansionPages > 0,
	})
	if err != nil {
		return domain.PhaseResult{}, rounds, err
	}
	rounds++
	res := o.Parse(text)
	log.WithField("records", len(res.Records)).Debug("Draft parsed")
	if len(res.Records) == 0 {
		return res, rounds, nil
	}

	if phase.Audit || phase.Verify {
		prompt := auditPrompt(phase, res.Records)
		step := "audit"
		if phase.Verify {
			prompt = verifyPrompt(phase, res.Records)
			step = "verify"
		}
		reviewed, err := o.subStep(ctx, items, system, prompt, false)
		switch {
		case err != nil && domain.IsCancellation(ctx, err):
			return domain.PhaseResult{}, rounds, err
		case err != nil:
			log.WithError(err).Warnf("Phase %s step failed, keeping draft", step)
		case len(reviewed.Records) == 0:
			log.Warnf("Phase %s step returned no test cases, keeping draft", step)
		default:
			kept := reviewed.Records
			if phase.Verify {
				kept = KeepVerified(res.Records, reviewed.Records)
			}
			if len(kept) == 0 {
				log.Warnf("Phase %s step matched no draft cases, keeping draft", step)
				break
			}
			rounds++
			log.WithFields(logrus.Fields{"before": len(res.Records), "after": len(kept)}).Infof("Phase %s applied", step)
			res.Records = kept
			res.Questions = append(res.Questions, reviewed.Questions...)
			if reviewed.Summary != "" {
				res.Summary = reviewed.Summary
			}
		}
	}

	hasMore := res.HasMore
	for page := 1; page <= phase.ExpansionPages; page++ {
		if page > 1 && !hasMore {
			log.WithField("page", page).Debug("Model reports no further cases, ending expansion")
			break
		}

		more, err := o.subStep(ctx, items, system, expansionPrompt(phase, res.Records, nextHint(lastNo, res.Records), page), true)
		if err != nil {
			if domain.IsCancellation(ctx, err) {
				return domain.PhaseResult{}, rounds, err
			}
			log.WithError(err).WithField("page", page).Warn("Expansion round failed, keeping collected cases")
			break
		}
		if len(more.Records) == 0 {
			log.WithField("page", page).Debug("Expansion round added nothing")
			break
		}
		rounds++
		res.Records = append(res.Records, more.Records...)
		res.Questions = append(res.Questions, more.Questions...)
		hasMore = more.HasMore
		log.WithFields(logrus.Fields{"page": page, "added": len(more.Records)}).Info("Expansion round complete")
	}

	if o.cfg.DedupeWithinPhase {
		res.Records = DedupeByNo(res.Records)
	}
	return res, rounds, nil
}

func (o *Orchestrator) subStep(ctx context.Context, items []domain.ContentItem, system, prompt string, expansion bool) (domain.PhaseResult, error) {
	text, err := o.InvokeModel(ctx, model.Request{
		Items:             items,
		Prompt:            prompt,
		SystemInstruction: system,
		UseSchema:         true,
		Expansion:         expansion,
	})
	if err != nil {
		return domain.PhaseResult{}, err
	}
	return o.Parse(text), nil
}

// KeepVerified returns the draft records whose number the verification reply
// kept, in draft order. Reply content is ignored; verification can only drop.
func KeepVerified(draft, reply []domain.TestCaseRecord) []domain.TestCaseRecord {
	keep := make(map[int]bool, len(reply))
	for _, r := range reply {
		keep[r.No] = true
	}
	var out []domain.TestCaseRecord
	for _, r := range draft {
		if keep[r.No] {
			out = append(out, r)
		}
	}
	return out
}

// nextHint returns the numbering hint for whatever comes after recs.
func nextHint(lastNo int, recs []domain.TestCaseRecord) int {
	hint := lastNo + len(recs)
	for _, r := range recs {
		if r.No > hint {
			hint = r.No
		}
	}
	return hint
}

// DedupeByNo keeps the first record for each model-assigned number.
// Records without a number are always kept.
func DedupeByNo(recs []domain.TestCaseRecord) []domain.TestCaseRecord {
	seen := make(map[int]bool, len(recs))
	out := make([]domain.TestCaseRecord, 0, len(recs))
	for _, r := range recs {
		if r.No > 0 {
			if seen[r.No] {
				continue
			}
			seen[r.No] = true
		}
		out = append(out, r)
	}
	return out
}

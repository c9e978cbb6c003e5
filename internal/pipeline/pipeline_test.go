package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/converter"
	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/model"
	"github.com/fjglira/qagen/internal/pipeline"
)

// fakeModel answers each call through respond and records the requests.
type fakeModel struct {
	mu      sync.Mutex
	calls   []model.Request
	respond func(req model.Request, call int) (string, error)
}

func (f *fakeModel) Generate(ctx context.Context, req model.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.respond(req, n)
}

func (f *fakeModel) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Prompt)
	}
	return out
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func envelope(cases ...string) string {
	return `{"testCases":[` + strings.Join(cases, ",") + `]}`
}

func tc(no int, title string) string {
	return fmt.Sprintf(`{"no":%d,"title":%q,"steps":"1. Open","expectedResult":"Shown"}`, no, title)
}

func items() []domain.ContentItem {
	return []domain.ContentItem{domain.NewTextItem("requirements.md", "--- Content of requirements.md ---\nLogin screen")}
}

var _ = Describe("Orchestrator", func() {
	var (
		cfg  *config.Config
		fake *fakeModel
	)

	BeforeEach(func() {
		cfg = config.DefaultConfig()
		cfg.Pipeline.Phases = []config.PhaseConfig{{Name: "Only", Goal: "Everything"}}
		fake = &fakeModel{}
	})

	newOrchestrator := func() *pipeline.Orchestrator {
		return pipeline.NewOrchestrator(fake, converter.NewConverter(nil), cfg, quietLogger(), pipeline.WithSleep(noSleep))
	}

	Describe("Run", func() {
		It("normalizes a single phase response", func() {
			fake.respond = func(model.Request, int) (string, error) {
				return `{"testCases":[{"no":1,"title":"로그인 실패","steps":"1. ID 입력\n2. 잘못된 PW 입력\n3. 로그인 클릭","expectedResult":"에러 메시지 노출된다"}]}`, nil
			}

			out, err := newOrchestrator().Run(context.Background(), items())
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(1))
			rec := out.Records[0]
			Expect(rec.No).To(Equal(1))
			Expect(rec.Title).To(Equal("로그인 실패"))
			lines := strings.Split(rec.Steps, "\n")
			Expect(lines).To(HaveLen(3))
			for _, l := range lines {
				Expect(l).To(MatchRegexp(`^\d+\. `))
			}
		})

		It("recovers records from truncated output", func() {
			fake.respond = func(model.Request, int) (string, error) {
				return `{"testCases":[{"no":1,"title":"A"},{"no":2,"title":"B"`, nil
			}
			out, err := newOrchestrator().Run(context.Background(), items())
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(1))
			Expect(out.Records[0].Title).To(Equal("A"))
		})

		It("rejects an empty content bundle", func() {
			_, err := newOrchestrator().Run(context.Background(), nil)
			Expect(errors.Is(err, domain.ErrNoContent)).To(BeTrue())
		})

		Context("with several phases", func() {
			BeforeEach(func() {
				cfg.Pipeline.Phases = []config.PhaseConfig{
					{Name: "First", Goal: "g1"},
					{Name: "Second", Goal: "g2"},
					{Name: "Third", Goal: "g3"},
				}
			})

			It("skips a failing phase and continues", func() {
				fake.respond = func(req model.Request, _ int) (string, error) {
					switch {
					case strings.Contains(req.Prompt, "phase: First"):
						return "", errors.New("503 from model")
					case strings.Contains(req.Prompt, "phase: Second"):
						return envelope(tc(1, "two")), nil
					default:
						return envelope(tc(2, "three")), nil
					}
				}

				out, err := newOrchestrator().Run(context.Background(), items())
				Expect(err).ToNot(HaveOccurred())
				Expect(out.Records).To(HaveLen(2))
				Expect(out.Phases).To(HaveLen(3))
				Expect(out.Phases[0].Skipped).To(BeTrue())
				Expect(errors.Is(out.Phases[0].Err, domain.ErrGenerationFailed)).To(BeTrue())
				Expect(out.Phases[1].Records).To(Equal(1))
				// three attempts for the failing phase, one each for the others
				Expect(fake.Prompts()).To(HaveLen(5))
			})

			It("skips a phase that yields nothing", func() {
				fake.respond = func(req model.Request, _ int) (string, error) {
					if strings.Contains(req.Prompt, "phase: Second") {
						return "I cannot help with that.", nil
					}
					return envelope(tc(1, "x")), nil
				}
				out, err := newOrchestrator().Run(context.Background(), items())
				Expect(err).ToNot(HaveOccurred())
				Expect(out.Records).To(HaveLen(2))
				Expect(out.Phases[1].Skipped).To(BeTrue())
				Expect(out.Phases[1].Err).ToNot(HaveOccurred())
			})

			It("passes the last number to the next phase", func() {
				fake.respond = func(req model.Request, _ int) (string, error) {
					return envelope(tc(1, "a"), tc(2, "b")), nil
				}
				_, err := newOrchestrator().Run(context.Background(), items())
				Expect(err).ToNot(HaveOccurred())
				prompts := fake.Prompts()
				Expect(prompts[0]).To(ContainSubstring("Start numbering at 1."))
				Expect(prompts[1]).To(ContainSubstring("start numbering at 3."))
				Expect(prompts[2]).To(ContainSubstring("start numbering at 5."))
			})

			It("merges questions without duplicates and joins summaries", func() {
				fake.respond = func(req model.Request, _ int) (string, error) {
					return `{"testCases":[` + tc(1, "a") + `],"questions":["Max length?"],"summary":"done"}`, nil
				}
				out, err := newOrchestrator().Run(context.Background(), items())
				Expect(err).ToNot(HaveOccurred())
				Expect(out.Questions).To(Equal([]string{"Max length?"}))
				Expect(out.Summary).To(Equal("First: done\nSecond: done\nThird: done"))
				Expect(out.Records).To(HaveLen(3))
				Expect([]int{out.Records[0].No, out.Records[1].No, out.Records[2].No}).To(Equal([]int{1, 2, 3}))
			})

			It("aborts on cancellation without running later phases", func() {
				ctx, cancel := context.WithCancel(context.Background())
				fake.respond = func(req model.Request, _ int) (string, error) {
					cancel()
					return "", context.Canceled
				}
				_, err := newOrchestrator().Run(ctx, items())
				Expect(errors.Is(err, context.Canceled)).To(BeTrue())
				Expect(fake.Prompts()).To(HaveLen(1))
			})

			It("skips a phase whose model calls time out and runs the rest", func() {
				fake.respond = func(req model.Request, _ int) (string, error) {
					if strings.Contains(req.Prompt, "phase: First") {
						callCtx, cancel := context.WithTimeout(context.Background(), 0)
						defer cancel()
						<-callCtx.Done()
						return "", callCtx.Err()
					}
					return envelope(tc(1, "x")), nil
				}
				out, err := newOrchestrator().Run(context.Background(), items())
				Expect(err).ToNot(HaveOccurred())
				Expect(out.Phases[0].Skipped).To(BeTrue())
				Expect(errors.Is(out.Phases[0].Err, domain.ErrGenerationFailed)).To(BeTrue())
				Expect(out.Records).To(HaveLen(2))
				Expect(fake.Prompts()).To(HaveLen(5))
			})

			It("fails when every phase is empty", func() {
				fake.respond = func(model.Request, int) (string, error) { return `{"testCases":[]}`, nil }
				_, err := newOrchestrator().Run(context.Background(), items())
				Expect(errors.Is(err, domain.ErrGenerationFailed)).To(BeTrue())
			})
		})

		It("runs the audit step and uses its corrected set", func() {
			cfg.Pipeline.Phases = []config.PhaseConfig{{Name: "Visual", Goal: "g", Audit: true}}
			fake.respond = func(req model.Request, _ int) (string, error) {
				if strings.Contains(req.Prompt, "(review)") {
					Expect(req.Prompt).To(ContainSubstring(`"title": "draft"`))
					return envelope(tc(1, "fixed"), tc(2, "added")), nil
				}
				return envelope(tc(1, "draft")), nil
			}
			out, err := newOrchestrator().Run(context.Background(), items())
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(2))
			Expect(out.Records[0].Title).To(Equal("fixed"))
			Expect(out.Phases[0].Rounds).To(Equal(2))
		})

		It("keeps the draft when verification fails", func() {
			cfg.Pipeline.Phases = []config.PhaseConfig{{Name: "Logic", Goal: "g", Verify: true}}
			fake.respond = func(req model.Request, _ int) (string, error) {
				if strings.Contains(req.Prompt, "(verification)") {
					return "", errors.New("overloaded")
				}
				return envelope(tc(1, "a"), tc(2, "b")), nil
			}
			out, err := newOrchestrator().Run(context.Background(), items())
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(2))
		})

		It("drops cases verification rejects", func() {
			cfg.Pipeline.Phases = []config.PhaseConfig{{Name: "Logic", Goal: "g", Verify: true}}
			fake.respond = func(req model.Request, _ int) (string, error) {
				if strings.Contains(req.Prompt, "(verification)") {
					return envelope(tc(2, "b")), nil
				}
				return envelope(tc(1, "a"), tc(2, "b")), nil
			}
			out, err := newOrchestrator().Run(context.Background(), items())
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(1))
			Expect(out.Records[0].Title).To(Equal("b"))
		})

		It("only keeps draft cases when verification rewrites or invents", func() {
			cfg.Pipeline.Phases = []config.PhaseConfig{{Name: "Logic", Goal: "g", Verify: true}}
			fake.respond = func(req model.Request, _ int) (string, error) {
				if strings.Contains(req.Prompt, "(verification)") {
					return envelope(tc(2, "rewritten"), tc(9, "invented")), nil
				}
				return envelope(tc(1, "a"), tc(2, "b"), tc(3, "c")), nil
			}
			out, err := newOrchestrator().Run(context.Background(), items())
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(1))
			Expect(out.Records[0].Title).To(Equal("b"))
		})

		It("keeps the draft when verification matches nothing", func() {
			cfg.Pipeline.Phases = []config.PhaseConfig{{Name: "Logic", Goal: "g", Verify: true}}
			fake.respond = func(req model.Request, _ int) (string, error) {
				if strings.Contains(req.Prompt, "(verification)") {
					return envelope(tc(7, "other")), nil
				}
				return envelope(tc(1, "a"), tc(2, "b")), nil
			}
			out, err := newOrchestrator().Run(context.Background(), items())
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(2))
			Expect(out.Phases[0].Rounds).To(Equal(1))
		})

		Describe("expansion", func() {
			roundRe := regexp.MustCompile(`round (\d+)`)

			BeforeEach(func() {
				cfg.Pipeline.Phases = []config.PhaseConfig{{Name: "Edge", Goal: "g", ExpansionPages: 3}}
			})

			It("stops at the page cap even when the model claims more", func() {
				fake.respond = func(req model.Request, n int) (string, error) {
					Expect(req.Expansion).To(BeTrue())
					if m := roundRe.FindStringSubmatch(req.Prompt); m != nil {
						return `{"testCases":[` + tc(10+n, "more "+m[1]) + `],"hasMore":true}`, nil
					}
					return `{"testCases":[` + tc(1, "first") + `],"hasMore":true}`, nil
				}
				out, err := newOrchestrator().Run(context.Background(), items())
				Expect(err).ToNot(HaveOccurred())
				Expect(fake.Prompts()).To(HaveLen(4))
				Expect(out.Phases[0].Rounds).To(Equal(4))
				Expect(out.Records).To(HaveLen(4))
			})

			It("ends early when the model reports no more", func() {
				fake.respond = func(req model.Request, n int) (string, error) {
					return fmt.Sprintf(`{"testCases":[%s],"hasMore":false}`, tc(n, fmt.Sprintf("case %d", n))), nil
				}
				out, err := newOrchestrator().Run(context.Background(), items())
				Expect(err).ToNot(HaveOccurred())
				Expect(fake.Prompts()).To(HaveLen(2))
				Expect(out.Records).To(HaveLen(2))
			})

			It("ends when a round adds nothing", func() {
				fake.respond = func(req model.Request, n int) (string, error) {
					if n > 1 {
						return `{"testCases":[],"hasMore":true}`, nil
					}
					return `{"testCases":[` + tc(1, "only") + `],"hasMore":true}`, nil
				}
				out, err := newOrchestrator().Run(context.Background(), items())
				Expect(err).ToNot(HaveOccurred())
				Expect(fake.Prompts()).To(HaveLen(2))
				Expect(out.Records).To(HaveLen(1))
			})
		})

		It("deduplicates by number within a phase when enabled", func() {
			fake.respond = func(model.Request, int) (string, error) {
				return envelope(tc(1, "a"), tc(1, "a again"), tc(2, "b")), nil
			}
			out, err := newOrchestrator().Run(context.Background(), items())
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(2))

			cfg.Pipeline.DedupeWithinPhase = false
			out, err = newOrchestrator().Run(context.Background(), items())
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(3))
		})
	})

	Describe("InvokeModel", func() {
		It("retries failures and empty responses", func() {
			fake.respond = func(_ model.Request, n int) (string, error) {
				switch n {
				case 1:
					return "", errors.New("boom")
				case 2:
					return "  ", nil
				}
				return "ok", nil
			}
			text, err := newOrchestrator().InvokeModel(context.Background(), model.Request{Prompt: "p"})
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("ok"))
			Expect(fake.Prompts()).To(HaveLen(3))
		})

		It("reports generation failure after the last attempt", func() {
			cfg.Model.Attempts = 2
			fake.respond = func(model.Request, int) (string, error) { return "", nil }
			_, err := newOrchestrator().InvokeModel(context.Background(), model.Request{Prompt: "p"})
			Expect(errors.Is(err, domain.ErrGenerationFailed)).To(BeTrue())
			Expect(errors.Is(err, model.ErrEmptyResponse)).To(BeTrue())
			Expect(fake.Prompts()).To(HaveLen(2))
		})

		It("stops retrying when cancelled during the backoff", func() {
			ctx, cancel := context.WithCancel(context.Background())
			fake.respond = func(model.Request, int) (string, error) { return "", errors.New("boom") }
			orch := pipeline.NewOrchestrator(fake, converter.NewConverter(nil), cfg, quietLogger(),
				pipeline.WithSleep(func(ctx context.Context, _ time.Duration) error {
					cancel()
					return ctx.Err()
				}))
			_, err := orch.InvokeModel(ctx, model.Request{Prompt: "p"})
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(errors.Is(err, domain.ErrGenerationFailed)).To(BeFalse())
			Expect(fake.Prompts()).To(HaveLen(1))
		})
	})

	Describe("RefineWithAnswers", func() {
		It("replaces the record set", func() {
			current := []domain.TestCaseRecord{{ID: "old", No: 1, Title: "Old case", Steps: "1. Open"}}
			fake.respond = func(req model.Request, _ int) (string, error) {
				Expect(req.Prompt).To(ContainSubstring("Q: Max length?"))
				Expect(req.Prompt).To(ContainSubstring("A: 20"))
				Expect(req.Prompt).To(ContainSubstring("Old case"))
				return envelope(tc(5, "New b"), tc(3, "New a")), nil
			}
			out, err := newOrchestrator().RefineWithAnswers(context.Background(), items(), current,
				[]domain.QAPair{{Question: "Max length?", Answer: "20"}}, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Records).To(HaveLen(2))
			Expect(out.Records[0].No).To(Equal(1))
			Expect(out.Records[1].No).To(Equal(2))
			for _, r := range out.Records {
				Expect(r.ID).ToNot(Equal("old"))
			}
		})

		It("fails without touching anything when the model returns nothing", func() {
			fake.respond = func(model.Request, int) (string, error) { return "{}", nil }
			_, err := newOrchestrator().RefineWithAnswers(context.Background(), items(), nil, nil, "")
			Expect(errors.Is(err, domain.ErrGenerationFailed)).To(BeTrue())
		})
	})
})

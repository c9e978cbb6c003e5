package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fjglira/qagen/internal/content"
	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/generator"
	"github.com/fjglira/qagen/internal/parser"
	"github.com/fjglira/qagen/internal/scanner"
	tmpl "github.com/fjglira/qagen/internal/template"
)

var (
	refineRecords string
	refineAnswers string
	refineStyle   string
	refineName    string
)

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Regenerate an exported test-case set using answers to the model's questions",
	Long: `Reads a JSON sheet written by 'qagen generate' and a YAML list of
question/answer pairs, sends both with the configured inputs to the model and
writes the refined sheet. The original files are left unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ctx := cmd.Context()

		data, err := os.ReadFile(refineRecords)
		if err != nil {
			return domain.NewError("load", refineRecords, "failed to read records", err)
		}
		sheet, err := tmpl.ParseSheet(data)
		if err != nil {
			return err
		}
		qa, err := readAnswers(refineAnswers)
		if err != nil {
			return err
		}

		// Reload the inputs so the model sees the same content again.
		recursive := true
		if cfg.Input.Recursive != nil {
			recursive = *cfg.Input.Recursive
		}
		files, err := scanner.NewScanner(recursive).ScanAll(cfg.Input.Directories, cfg.Input.Include, cfg.Input.Exclude)
		if err != nil {
			log.Warnf("Failed to scan inputs: %v", err)
		}
		items, err := content.NewLoader(cfg.Input, parser.NewDefaultRegistry(), log).Load(ctx, files)
		if err != nil {
			return err
		}

		orch, err := newOrchestrator(ctx, cfg)
		if err != nil {
			return err
		}
		outcome, err := orch.RefineWithAnswers(ctx, items, sheet.Records, qa, refineStyle)
		if err != nil {
			return err
		}

		engine, err := tmpl.NewEngine(cfg.Templates.Directory, cfg.Templates.Default)
		if err != nil {
			return fmt.Errorf("failed to create template engine: %w", err)
		}
		output := cfg.Output
		output.BaseName = refineName
		if output.BaseName == "" {
			output.BaseName = cfg.Output.BaseName + "_refined"
		}
		written, err := generator.WriteSheet(engine, tmpl.Sheet{
			Title:     output.BaseName,
			Records:   outcome.Records,
			Questions: outcome.Questions,
			Summary:   outcome.Summary,
		}, output, cfg.DryRun, log)
		if err != nil {
			return err
		}

		printSummary(cmd.OutOrStdout(), &generator.Report{Items: len(items), Outcome: outcome, Written: written})
		return nil
	},
}

func init() {
	refineCmd.Flags().StringVar(&refineRecords, "records", "", "JSON sheet written by 'qagen generate'")
	refineCmd.Flags().StringVar(&refineAnswers, "answers", "", "YAML list of {question, answer} pairs")
	refineCmd.Flags().StringVar(&refineStyle, "style", "", "extra writing instructions (default: pipeline.style_note)")
	refineCmd.Flags().StringVar(&refineName, "name", "", "base name of the refined output (default: <output.base_name>_refined)")
	_ = refineCmd.MarkFlagRequired("records")
	_ = refineCmd.MarkFlagRequired("answers")
	rootCmd.AddCommand(refineCmd)
}

// readAnswers decodes a YAML list of question/answer pairs. Unanswered
// questions are dropped.
func readAnswers(path string) ([]domain.QAPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError("load", path, "failed to read answers", err)
	}
	var pairs []domain.QAPair
	if err := yaml.Unmarshal(data, &pairs); err != nil {
		return nil, domain.NewErrorWithSuggestion("load", path, "failed to parse answers",
			"use a YAML list of entries with 'question' and 'answer' keys", err)
	}
	answered := pairs[:0]
	for _, p := range pairs {
		if p.Answer != "" {
			answered = append(answered, p)
		}
	}
	return answered, nil
}

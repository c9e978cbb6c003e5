package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/content"
	"github.com/fjglira/qagen/internal/converter"
	"github.com/fjglira/qagen/internal/fetch"
	"github.com/fjglira/qagen/internal/figma"
	"github.com/fjglira/qagen/internal/generator"
	"github.com/fjglira/qagen/internal/model"
	"github.com/fjglira/qagen/internal/parser"
	"github.com/fjglira/qagen/internal/pipeline"
	"github.com/fjglira/qagen/internal/scanner"
	tmpl "github.com/fjglira/qagen/internal/template"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate QA test cases from the configured inputs",
	Long:  `Scans input directories, optionally imports a Figma page, runs every analysis phase against the model and writes the test-case sheet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log.Info("Configuration loaded successfully")
		log.WithField("directories", cfg.Input.Directories).Info("Scanning directories")
		log.WithField("path", cfg.Output.Directory).Info("Output directory")

		report, err := runGenerate(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

// runGenerate wires all components and runs the generator.
func runGenerate(ctx context.Context, cfg *config.Config) (*generator.Report, error) {
	// Create scanner and content loader
	recursive := true
	if cfg.Input.Recursive != nil {
		recursive = *cfg.Input.Recursive
	}
	s := scanner.NewScanner(recursive)
	loader := content.NewLoader(cfg.Input, parser.NewDefaultRegistry(), log)

	// Create the phase pipeline
	orch, err := newOrchestrator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Create template engine
	engine, err := tmpl.NewEngine(cfg.Templates.Directory, cfg.Templates.Default)
	if err != nil {
		return nil, fmt.Errorf("failed to create template engine: %w", err)
	}

	var importer generator.PageImporter
	if cfg.Figma.Enabled {
		importer = newImporter(cfg)
	}

	// Create and run generator
	gen := generator.NewGenerator(s, loader, importer, orch, engine, log)
	return gen.Generate(ctx, cfg)
}

func newOrchestrator(ctx context.Context, cfg *config.Config) (*pipeline.Orchestrator, error) {
	m, err := model.NewGenAIClient(ctx, cfg.Model, log)
	if err != nil {
		return nil, err
	}
	return pipeline.NewOrchestrator(m, converter.NewConverter(nil), cfg, log), nil
}

func newImporter(cfg *config.Config) *figma.Importer {
	client := fetch.NewClient(cfg.Fetch, nil, log)
	return figma.NewImporter(cfg.Figma, cfg.Fetch, client, log)
}

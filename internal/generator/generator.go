package generator

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/figma"
	"github.com/fjglira/qagen/internal/pipeline"
	"github.com/fjglira/qagen/internal/scanner"
	tmpl "github.com/fjglira/qagen/internal/template"
)

// Generator is the top-level orchestrator.
type Generator interface {
	Generate(ctx context.Context, cfg *config.Config) (*Report, error)
}

// ContentLoader turns scanned files into content items.
type ContentLoader interface {
	Load(ctx context.Context, paths []string) ([]domain.ContentItem, error)
}

// PageImporter pulls content items from a design-tool page.
type PageImporter interface {
	ImportPage(ctx context.Context, fileKey, token, pageID string, progress figma.ProgressFunc, nodeIDs []string) ([]domain.ContentItem, error)
}

// Runner runs the phase pipeline over a content bundle.
type Runner interface {
	Run(ctx context.Context, items []domain.ContentItem) (*pipeline.Outcome, error)
}

// Report describes a finished generation run.
type Report struct {
	Files   int
	Items   int
	Outcome *pipeline.Outcome
	Written []string
}

// DefaultGenerator implements Generator by wiring all components together.
type DefaultGenerator struct {
	scanner  scanner.Scanner
	loader   ContentLoader
	importer PageImporter
	runner   Runner
	engine   tmpl.TemplateEngine
	log      logrus.FieldLogger
}

// NewGenerator creates a new DefaultGenerator with all dependencies.
// importer may be nil when no design-tool import is configured.
func NewGenerator(
	s scanner.Scanner,
	l ContentLoader,
	i PageImporter,
	r Runner,
	e tmpl.TemplateEngine,
	log logrus.FieldLogger,
) *DefaultGenerator {
	return &DefaultGenerator{
		scanner:  s,
		loader:   l,
		importer: i,
		runner:   r,
		engine:   e,
		log:      log.WithField("component", "generator"),
	}
}

// Generate runs the full workflow: scan → load → import → pipeline → export.
func (g *DefaultGenerator) Generate(ctx context.Context, cfg *config.Config) (*Report, error) {
	report := &Report{}

	// Step 1: Scan input directories
	var files []string
	for _, dir := range cfg.Input.Directories {
		g.log.Debugf("Scanning directory: %s", dir)
		found, err := g.scanner.Scan(dir, cfg.Input.Include, cfg.Input.Exclude)
		if err != nil {
			g.log.Warnf("Failed to scan directory %s: %v", dir, err)
			continue
		}
		files = append(files, found...)
	}
	report.Files = len(files)
	g.log.Infof("Found %d input file(s)", len(files))

	// Step 2: Build the content bundle from files
	items, err := g.loader.Load(ctx, files)
	if err != nil {
		return report, err
	}

	// Step 3: Optional design-tool import
	if cfg.Figma.Enabled {
		if g.importer == nil {
			return report, domain.NewError("figma", cfg.Figma.FileKey, "figma import enabled but no importer configured", nil)
		}
		progress := func(stage string, done, total int) {
			g.log.WithFields(logrus.Fields{"stage": stage, "done": done, "total": total}).Info("Figma import progress")
		}
		imported, err := g.importer.ImportPage(ctx, cfg.Figma.FileKey, cfg.Figma.Token, cfg.Figma.PageID, progress, cfg.Figma.NodeIDs)
		if err != nil {
			return report, err
		}
		items = append(items, imported...)
	}
	report.Items = len(items)

	if len(items) == 0 {
		return report, domain.NewErrorWithSuggestion("load", strings.Join(cfg.Input.Directories, ","),
			"no content to analyse",
			"check input.directories and input.include in qagen.yaml, or enable figma import",
			domain.ErrNoContent)
	}

	// Step 4: Run the phase pipeline
	outcome, err := g.runner.Run(ctx, items)
	if err != nil {
		return report, err
	}
	report.Outcome = outcome
	g.log.Infof("Generated %d test case(s)", len(outcome.Records))

	// Step 5: Export
	sheet := tmpl.Sheet{
		Title:     cfg.Output.BaseName,
		Records:   outcome.Records,
		Questions: outcome.Questions,
		Summary:   outcome.Summary,
	}
	written, err := WriteSheet(g.engine, sheet, cfg.Output, cfg.DryRun, g.log)
	report.Written = written
	if err != nil {
		return report, err
	}

	g.log.Info("Generation complete")
	return report, nil
}

// WriteSheet renders the sheet in every configured format and writes
// <directory>/<base_name><ext>. In dry-run mode it only logs.
func WriteSheet(engine tmpl.TemplateEngine, sheet tmpl.Sheet, output config.OutputConfig, dryRun bool, log logrus.FieldLogger) ([]string, error) {
	if !dryRun {
		if err := os.MkdirAll(output.Directory, 0755); err != nil {
			return nil, domain.NewErrorWithSuggestion("write", output.Directory,
				"failed to create output directory",
				"check that the parent directory exists and has write permissions",
				err)
		}
	}

	var written []string
	for _, format := range output.Formats {
		rendered, err := engine.Render(format, sheet)
		if err != nil {
			return written, err
		}

		outputPath := filepath.Join(output.Directory, output.BaseName+tmpl.Extension(format))

		if dryRun {
			log.Infof("[DRY-RUN] Would write: %s", outputPath)
			log.Debugf("[DRY-RUN] Content:\n%s", rendered)
			continue
		}

		log.Infof("Writing: %s", outputPath)
		if err := os.WriteFile(outputPath, []byte(rendered), 0644); err != nil {
			return written, domain.NewErrorWithSuggestion("write", outputPath,
				"failed to write output file",
				"check disk space and write permissions for the output directory",
				err)
		}
		written = append(written, outputPath)
	}
	return written, nil
}

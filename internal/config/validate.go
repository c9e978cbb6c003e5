package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/fjglira/qagen/internal/domain"
)

var validFormats = map[string]bool{"markdown": true, "csv": true, "json": true}

// Validate checks the Config for required fields and valid values.
func Validate(cfg *Config) error {
	var errs []string

	// Input validation
	if len(cfg.Input.Directories) == 0 && !cfg.Figma.Enabled {
		errs = append(errs, "input.directories must not be empty unless figma.enabled is set")
	}
	if len(cfg.Input.Directories) > 0 && len(cfg.Input.Include) == 0 {
		errs = append(errs, "input.include must not be empty")
	}

	// Model validation
	if cfg.Model.Name == "" {
		errs = append(errs, "model.name must not be empty")
	}
	if cfg.Model.Attempts <= 0 {
		errs = append(errs, "model.attempts must be greater than 0")
	}
	if cfg.Model.Temperature < 0 || cfg.Model.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("model.temperature must be between 0 and 2 (got %v)", cfg.Model.Temperature))
	}

	// Figma validation
	if cfg.Figma.Enabled {
		if cfg.Figma.FileKey == "" {
			errs = append(errs, "figma.file_key must be set when figma.enabled is true")
		}
		if cfg.Figma.PageID == "" {
			errs = append(errs, "figma.page_id must be set when figma.enabled is true")
		}
	}
	if cfg.Figma.TextBatchSize <= 0 || cfg.Figma.ImageBatchSize <= 0 {
		errs = append(errs, "figma batch sizes must be greater than 0")
	}
	if cfg.Figma.TextCooldown.Max < cfg.Figma.TextCooldown.Min || cfg.Figma.ImageCooldown.Max < cfg.Figma.ImageCooldown.Min {
		errs = append(errs, "figma cooldown max must not be below min")
	}

	// Fetch validation
	if len(cfg.Fetch.APIRelays) == 0 {
		errs = append(errs, "fetch.api_relays must not be empty")
	}
	if len(cfg.Fetch.ImageRelays) == 0 {
		errs = append(errs, "fetch.image_relays must not be empty")
	}
	for _, r := range append(append([]string{}, cfg.Fetch.APIRelays...), cfg.Fetch.ImageRelays...) {
		if !strings.Contains(r, "{url}") && !strings.Contains(r, "{rawurl}") {
			errs = append(errs, fmt.Sprintf("relay template %q has no {url} or {rawurl} placeholder", r))
		}
	}
	if cfg.Fetch.BackoffFactor < 1 {
		errs = append(errs, "fetch.backoff_factor must be at least 1")
	}
	if cfg.Fetch.BanThreshold <= 0 {
		errs = append(errs, "fetch.ban_threshold must be positive")
	}

	// Pipeline validation
	if _, err := language.Parse(cfg.Pipeline.Language); err != nil {
		errs = append(errs, fmt.Sprintf("pipeline.language %q is not a valid BCP 47 tag", cfg.Pipeline.Language))
	}
	if len(cfg.Pipeline.Phases) == 0 {
		errs = append(errs, "pipeline.phases must not be empty")
	}
	for i, p := range cfg.Pipeline.Phases {
		if p.Name == "" || p.Goal == "" {
			errs = append(errs, fmt.Sprintf("pipeline.phases[%d] needs a name and a goal", i))
		}
		if p.ExpansionPages < 0 {
			errs = append(errs, fmt.Sprintf("pipeline.phases[%d].expansion_pages must not be negative", i))
		}
	}

	// Output validation
	if cfg.Output.Directory == "" {
		errs = append(errs, "output.directory must not be empty")
	}
	if cfg.Output.BaseName == "" {
		errs = append(errs, "output.base_name must not be empty")
	}
	for _, f := range cfg.Output.Formats {
		if !validFormats[f] {
			errs = append(errs, fmt.Sprintf("output.formats contains unknown format %q (want markdown, csv or json)", f))
		}
	}

	// Validate logging level
	if cfg.Logging.Level != "" {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[cfg.Logging.Level] {
			errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
		}
	}

	if len(errs) > 0 {
		return domain.NewError("config", "", fmt.Sprintf("validation failed: %s", strings.Join(errs, "; ")), nil)
	}

	return nil
}

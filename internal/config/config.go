package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fjglira/qagen/internal/domain"
)

// Config is the top-level configuration struct.
type Config struct {
	Input     InputConfig    `yaml:"input"`
	Model     ModelConfig    `yaml:"model"`
	Figma     FigmaConfig    `yaml:"figma"`
	Fetch     FetchConfig    `yaml:"fetch"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	Output    OutputConfig   `yaml:"output"`
	Templates TemplateConfig `yaml:"templates"`
	Logging   LoggingConfig  `yaml:"logging"`
	DryRun    bool           `yaml:"dry_run"`
}

type InputConfig struct {
	Directories   []string `yaml:"directories"`
	Include       []string `yaml:"include"`
	Exclude       []string `yaml:"exclude"`
	Recursive     *bool    `yaml:"recursive"` // pointer to distinguish unset from false
	MaxImageBytes int64    `yaml:"max_image_bytes"`
	MaxTextBytes  int64    `yaml:"max_text_bytes"`
}

type ModelConfig struct {
	APIKey          string        `yaml:"api_key" env:"QAGEN_GEMINI_API_KEY"`
	Name            string        `yaml:"name" env:"QAGEN_MODEL"`
	BaseURL         string        `yaml:"base_url"`
	Temperature     float32       `yaml:"temperature"`
	MaxOutputTokens int32         `yaml:"max_output_tokens"`
	Attempts        int           `yaml:"attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	Timeout         time.Duration `yaml:"timeout"`
}

type FigmaConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Token           string        `yaml:"token" env:"QAGEN_FIGMA_TOKEN"`
	FileKey         string        `yaml:"file_key" env:"QAGEN_FIGMA_FILE"`
	PageID          string        `yaml:"page_id"`
	NodeIDs         []string      `yaml:"node_ids"`
	BaseURL         string        `yaml:"base_url"`
	TextBatchSize   int           `yaml:"text_batch_size"`
	ImageBatchSize  int           `yaml:"image_batch_size"`
	TextCooldown    Cooldown      `yaml:"text_cooldown"`
	ImageCooldown   Cooldown      `yaml:"image_cooldown"`
	ImageScale      float64       `yaml:"image_scale"`
	FallbackScale   float64       `yaml:"fallback_scale"`
	DownloadRetries int           `yaml:"download_retries"`
	DownloadDelay   time.Duration `yaml:"download_delay"`
	MaxTreeDepth    int           `yaml:"max_tree_depth"`
}

// Cooldown is a jittered pause between batches, drawn uniformly from [Min, Max].
type Cooldown struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

type FetchConfig struct {
	APIRelays         []string      `yaml:"api_relays"`
	ImageRelays       []string      `yaml:"image_relays"`
	CacheBust         bool          `yaml:"cache_bust"`
	RelayPause        time.Duration `yaml:"relay_pause"`
	Retries           int           `yaml:"retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MinDelay          time.Duration `yaml:"min_delay"`
	BackoffFactor     float64       `yaml:"backoff_factor"`
	BanThreshold      time.Duration `yaml:"ban_threshold"`
	RetryAfterBuffer  time.Duration `yaml:"retry_after_buffer"`
	NetworkRetryDelay time.Duration `yaml:"network_retry_delay"`
	Timeout           time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	Language          string        `yaml:"language" env:"QAGEN_LANGUAGE"`
	StyleNote         string        `yaml:"style_note"`
	DedupeWithinPhase bool          `yaml:"dedupe_within_phase"`
	Phases            []PhaseConfig `yaml:"phases"`
}

type PhaseConfig struct {
	Name           string `yaml:"name"`
	Goal           string `yaml:"goal"`
	Audit          bool   `yaml:"audit"`
	Verify         bool   `yaml:"verify"`
	ExpansionPages int    `yaml:"expansion_pages"`
}

type OutputConfig struct {
	Directory string   `yaml:"directory"`
	BaseName  string   `yaml:"base_name"`
	Formats   []string `yaml:"formats"`
}

type TemplateConfig struct {
	Directory string `yaml:"directory"`
	Default   string `yaml:"default"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads a YAML configuration file and returns a Config.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError("config", path, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, domain.NewError("config", path, "failed to parse config file", err)
	}

	return cfg, nil
}

// ApplyEnv loads dotenv files (missing files are fine) and then overlays
// credentials and other env-tagged fields from the process environment.
func ApplyEnv(cfg *Config, dotenvFiles ...string) error {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return domain.NewError("config", f, "failed to load env file", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return domain.NewError("config", "", "failed to read environment", err)
	}
	return nil
}

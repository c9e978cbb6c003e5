package config

import "time"

// DefaultPhases is the ordered analysis pass set used when the config names none.
func DefaultPhases() []PhaseConfig {
	return []PhaseConfig{
		{
			Name:  "Visual Inspection",
			Goal:  "Verify every visible element: labels, icons, images, placeholders, default values, layout states and copy exactly as shown.",
			Audit: true,
		},
		{
			Name: "Input Validation",
			Goal: "Verify every input field: required checks, length and format limits, allowed characters, error messages and masking.",
		},
		{
			Name:   "Business Logic",
			Goal:   "Verify rules, calculations, permissions and conditional behaviour implied by the screens and text.",
			Verify: true,
		},
		{
			Name: "State & Workflow",
			Goal: "Verify navigation, state transitions, button enable/disable conditions, popups and multi-step flows.",
		},
		{
			Name:           "Edge Cases",
			Goal:           "Verify boundaries, empty and error states, network failure handling, duplicate submissions and interruptions.",
			ExpansionPages: 3,
		},
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	recursive := true
	return &Config{
		Input: InputConfig{
			Directories:   []string{"designs"},
			Include:       []string{"*.png", "*.jpg", "*.jpeg", "*.webp", "*.gif", "*.md", "*.adoc", "*.txt"},
			Exclude:       []string{"node_modules/**", ".git/**"},
			Recursive:     &recursive,
			MaxImageBytes: 15 * 1024 * 1024,
			MaxTextBytes:  200 * 1024,
		},
		Model: ModelConfig{
			Name:            "gemini-2.5-flash",
			Temperature:     0.2,
			MaxOutputTokens: 65536,
			Attempts:        3,
			RetryDelay:      2 * time.Second,
			Timeout:         10 * time.Minute,
		},
		Figma: FigmaConfig{
			BaseURL:        "https://api.figma.com",
			TextBatchSize:  15,
			ImageBatchSize: 3,
			TextCooldown:   Cooldown{Min: 2 * time.Second, Max: 4 * time.Second},
			ImageCooldown:  Cooldown{Min: 4 * time.Second, Max: 6 * time.Second},
			ImageScale:     0.5,
			FallbackScale:  0.1,
			// Image downloads go through the CDN relays and get their own small budget.
			DownloadRetries: 2,
			DownloadDelay:   1500 * time.Millisecond,
			MaxTreeDepth:    64,
		},
		Fetch: FetchConfig{
			APIRelays: []string{
				"{rawurl}",
				"https://corsproxy.io/?url={url}",
				"https://api.codetabs.com/v1/proxy?quest={url}",
			},
			ImageRelays: []string{
				"https://wsrv.nl/?url={url}",
				"{rawurl}",
				"https://api.allorigins.win/raw?url={url}",
			},
			CacheBust:         true,
			RelayPause:        500 * time.Millisecond,
			Retries:           4,
			BaseDelay:         3 * time.Second,
			MinDelay:          3 * time.Second,
			BackoffFactor:     2,
			BanThreshold:      60 * time.Second,
			RetryAfterBuffer:  500 * time.Millisecond,
			NetworkRetryDelay: 1 * time.Second,
			Timeout:           60 * time.Second,
		},
		Pipeline: PipelineConfig{
			Language:          "ko",
			DedupeWithinPhase: true,
			Phases:            DefaultPhases(),
		},
		Output: OutputConfig{
			Directory: "qa-output",
			BaseName:  "testcases",
			Formats:   []string{"markdown", "csv", "json"},
		},
		Templates: TemplateConfig{
			Default: "markdown",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		DryRun: false,
	}
}

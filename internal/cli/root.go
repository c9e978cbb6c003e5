package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/domain"
)

const defaultConfigFile = "qagen.yaml"

var (
	cfgFile string
	verbose bool
	dryRun  bool
	log     = logrus.New()
)

// rootCmd is the base command for qagen.
var rootCmd = &cobra.Command{
	Use:   "qagen",
	Short: "Generate QA test cases from screenshots, design files and text specs",
	Long: `qagen reads screenshots, Figma frames and text specifications and asks a
hosted model to write structured QA test cases in several analysis phases.

Everything is driven by a YAML configuration file (qagen.yaml). Credentials
come from the environment or a .env file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.InfoLevel)
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "run the pipeline but don't write output files")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running operation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the config file (the default file may be absent), applies
// .env and environment overrides and the global flags, then validates.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgFile
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			log.Debugf("No %s found, using defaults", path)
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, ".env"); err != nil {
		return nil, err
	}
	if dryRun {
		cfg.DryRun = true
	}
	if err := configureLogging(cfg.Logging); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configureLogging applies logging.level and logging.file; --verbose wins over the level.
func configureLogging(lc config.LoggingConfig) error {
	if lc.Level != "" && !verbose {
		level, err := logrus.ParseLevel(lc.Level)
		if err != nil {
			return domain.NewError("config", "logging.level", "invalid log level", err)
		}
		log.SetLevel(level)
	}
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return domain.NewErrorWithSuggestion("config", lc.File, "failed to open log file",
				"check logging.file in qagen.yaml", err)
		}
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetOutput(f)
	}
	return nil
}

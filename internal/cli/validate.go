package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the qagen.yaml configuration file",
	Long:  `Loads the configuration file, applies environment overrides and checks for missing required fields and invalid values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), StyleSuccess.Render(fmt.Sprintf("Configuration file %q is valid.", cfgFile)))
		if cfg.Model.APIKey == "" {
			fmt.Fprintln(cmd.OutOrStdout(), StyleWarning.Render("QAGEN_GEMINI_API_KEY is not set; generate and refine will fail."))
		}
		log.WithFields(logrus.Fields{
			"model":   cfg.Model.Name,
			"phases":  len(cfg.Pipeline.Phases),
			"formats": cfg.Output.Formats,
		}).Debug("Loaded config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/domain"
)

var (
	figmaFile  string
	figmaPage  string
	figmaNodes []string
	figmaOut   string
)

var figmaCmd = &cobra.Command{
	Use:   "figma",
	Short: "Inspect and import Figma files",
}

var figmaPagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List the pages of a Figma file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := figmaConfig(cmd, false)
		if err != nil {
			return err
		}
		pages, err := newImporter(cfg).ListPages(cmd.Context(), cfg.Figma.FileKey, cfg.Figma.Token)
		if err != nil {
			return err
		}
		for _, p := range pages {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", StyleMuted.Render(p.ID), p.Name)
		}
		return nil
	},
}

var figmaFramesCmd = &cobra.Command{
	Use:   "frames",
	Short: "List the importable frames of a Figma page",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := figmaConfig(cmd, true)
		if err != nil {
			return err
		}
		frames, err := newImporter(cfg).ListFrames(cmd.Context(), cfg.Figma.FileKey, cfg.Figma.Token, cfg.Figma.PageID)
		if err != nil {
			return err
		}
		for _, f := range frames {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", StyleMuted.Render(f.ID), f.Kind, f.Name)
		}
		return nil
	},
}

var figmaImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a Figma page and write its images and text to a directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := figmaConfig(cmd, true)
		if err != nil {
			return err
		}

		progress := func(stage string, done, total int) {
			log.WithFields(logrus.Fields{"stage": stage, "done": done, "total": total}).Info("Figma import progress")
		}
		items, err := newImporter(cfg).ImportPage(cmd.Context(), cfg.Figma.FileKey, cfg.Figma.Token, cfg.Figma.PageID, progress, cfg.Figma.NodeIDs)
		if err != nil {
			return err
		}

		paths, err := writeItems(figmaOut, items, cfg.DryRun)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), StyleSuccess.Render("wrote ")+StyleMuted.Render(p))
		}
		return nil
	},
}

func init() {
	figmaCmd.PersistentFlags().StringVar(&figmaFile, "file", "", "Figma file key (default: figma.file_key or QAGEN_FIGMA_FILE)")
	figmaFramesCmd.Flags().StringVar(&figmaPage, "page", "", "page node ID (default: figma.page_id)")
	figmaImportCmd.Flags().StringVar(&figmaPage, "page", "", "page node ID (default: figma.page_id)")
	figmaImportCmd.Flags().StringSliceVar(&figmaNodes, "node", nil, "node ID to import (repeatable; default: every frame)")
	figmaImportCmd.Flags().StringVar(&figmaOut, "out", "figma-import", "directory to write imported items to")

	figmaCmd.AddCommand(figmaPagesCmd, figmaFramesCmd, figmaImportCmd)
	rootCmd.AddCommand(figmaCmd)
}

// figmaConfig loads the config and applies the figma flags over it.
func figmaConfig(cmd *cobra.Command, needPage bool) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if figmaFile != "" {
		cfg.Figma.FileKey = figmaFile
	}
	if figmaPage != "" {
		cfg.Figma.PageID = figmaPage
	}
	if len(figmaNodes) > 0 {
		cfg.Figma.NodeIDs = figmaNodes
	}

	switch {
	case cfg.Figma.Token == "":
		return nil, domain.NewErrorWithSuggestion("config", "figma.token", "no Figma token configured",
			"set QAGEN_FIGMA_TOKEN in the environment or .env", nil)
	case cfg.Figma.FileKey == "":
		return nil, domain.NewErrorWithSuggestion("config", "figma.file_key", "no Figma file key",
			"pass --file or set figma.file_key", nil)
	case needPage && cfg.Figma.PageID == "":
		return nil, domain.NewErrorWithSuggestion("config", "figma.page_id", "no Figma page",
			"pass --page; 'qagen figma pages' lists them", nil)
	}
	return cfg, nil
}

var imageExts = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// writeItems writes each content item to dir as NN-name.ext and returns the paths.
func writeItems(dir string, items []domain.ContentItem, dryRun bool) ([]string, error) {
	if !dryRun {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, domain.NewErrorWithSuggestion("write", dir,
				"failed to create output directory",
				"check that the parent directory exists and has write permissions",
				err)
		}
	}

	var paths []string
	for i, item := range items {
		ext, data := ".txt", []byte(item.Text)
		if item.Kind == domain.ItemImage {
			data = item.Data
			ext = ".bin"
			if e, ok := imageExts[item.MIMEType]; ok {
				ext = e
			}
		}
		path := filepath.Join(dir, fmt.Sprintf("%02d-%s%s", i+1, sanitizeName(item.Label), ext))

		if dryRun {
			log.Infof("[DRY-RUN] Would write: %s (%d bytes)", path, len(data))
			continue
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return paths, domain.NewErrorWithSuggestion("write", path,
				"failed to write output file",
				"check disk space and write permissions for the output directory",
				err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// sanitizeName converts a node name into a filename component.
// e.g. "Login / Error State" → "login_error_state"
func sanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	var b strings.Builder
	for _, c := range name {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '-' {
			b.WriteRune(c)
		}
	}
	result := b.String()
	// Collapse multiple underscores
	for strings.Contains(result, "__") {
		result = strings.ReplaceAll(result, "__", "_")
	}
	result = strings.Trim(result, "_")
	if result == "" {
		return "item"
	}
	return result
}

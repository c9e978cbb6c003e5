package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fjglira/qagen/internal/config"
)

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	writeFile := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	Describe("Load", func() {
		It("should return defaults for an empty path", func() {
			cfg, err := config.Load("")
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Model.Name).To(Equal("gemini-2.5-flash"))
		})

		It("should overlay YAML values on the defaults", func() {
			path := writeFile("qagen.yaml", `
input:
  directories: [screens]
model:
  name: gemini-2.5-pro
  retry_delay: 5s
fetch:
  ban_threshold: 90s
pipeline:
  language: en
  phases:
    - name: Smoke
      goal: Check the happy path.
`)
			cfg, err := config.Load(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Input.Directories).To(Equal([]string{"screens"}))
			Expect(cfg.Input.Include).To(ContainElement("*.png"))
			Expect(cfg.Model.Name).To(Equal("gemini-2.5-pro"))
			Expect(cfg.Model.RetryDelay).To(Equal(5 * time.Second))
			Expect(cfg.Fetch.BanThreshold).To(Equal(90 * time.Second))
			Expect(cfg.Pipeline.Language).To(Equal("en"))
			Expect(cfg.Pipeline.Phases).To(HaveLen(1))
			Expect(cfg.Pipeline.Phases[0].Name).To(Equal("Smoke"))
		})

		It("should return error for nonexistent file", func() {
			_, err := config.Load(filepath.Join(dir, "nonexistent.yaml"))
			Expect(err).To(HaveOccurred())
		})

		It("should return error for invalid YAML", func() {
			path := writeFile("invalid.yaml", "{{invalid yaml}}")
			_, err := config.Load(path)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ApplyEnv", func() {
		It("should take credentials from the environment", func() {
			GinkgoT().Setenv("QAGEN_GEMINI_API_KEY", "gem-key")
			GinkgoT().Setenv("QAGEN_FIGMA_TOKEN", "figd_token")
			cfg := config.DefaultConfig()
			Expect(config.ApplyEnv(cfg)).To(Succeed())
			Expect(cfg.Model.APIKey).To(Equal("gem-key"))
			Expect(cfg.Figma.Token).To(Equal("figd_token"))
		})

		It("should read a dotenv file and tolerate a missing one", func() {
			path := writeFile(".env", "QAGEN_LANGUAGE=ja\n")
			GinkgoT().Setenv("QAGEN_LANGUAGE", "")
			os.Unsetenv("QAGEN_LANGUAGE")
			cfg := config.DefaultConfig()
			Expect(config.ApplyEnv(cfg, path, filepath.Join(dir, "missing.env"))).To(Succeed())
			Expect(cfg.Pipeline.Language).To(Equal("ja"))
		})

		It("should keep YAML values when the variable is unset", func() {
			os.Unsetenv("QAGEN_MODEL")
			cfg := config.DefaultConfig()
			cfg.Model.Name = "from-yaml"
			Expect(config.ApplyEnv(cfg)).To(Succeed())
			Expect(cfg.Model.Name).To(Equal("from-yaml"))
		})
	})

	Describe("DefaultConfig", func() {
		It("should return config with sensible defaults", func() {
			cfg := config.DefaultConfig()
			Expect(*cfg.Input.Recursive).To(BeTrue())
			Expect(cfg.Fetch.BanThreshold).To(Equal(60 * time.Second))
			Expect(cfg.Fetch.MinDelay).To(Equal(3 * time.Second))
			Expect(cfg.Figma.ImageScale).To(Equal(0.5))
			Expect(cfg.Figma.FallbackScale).To(Equal(0.1))
			Expect(cfg.Pipeline.Phases).To(HaveLen(5))
			Expect(cfg.Logging.Level).To(Equal("info"))
		})
	})

	Describe("Validate", func() {
		It("should pass for the defaults", func() {
			Expect(config.Validate(config.DefaultConfig())).To(Succeed())
		})

		It("should require directories unless figma import is enabled", func() {
			cfg := config.DefaultConfig()
			cfg.Input.Directories = nil
			err := config.Validate(cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("input.directories"))

			cfg.Figma.Enabled = true
			cfg.Figma.FileKey = "abc"
			cfg.Figma.PageID = "0:1"
			Expect(config.Validate(cfg)).To(Succeed())
		})

		It("should reject relay templates without a placeholder", func() {
			cfg := config.DefaultConfig()
			cfg.Fetch.APIRelays = []string{"https://proxy.example"}
			err := config.Validate(cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("placeholder"))
		})

		It("should reject an invalid language tag", func() {
			cfg := config.DefaultConfig()
			cfg.Pipeline.Language = "not a tag!"
			err := config.Validate(cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("pipeline.language"))
		})

		It("should reject unknown output formats", func() {
			cfg := config.DefaultConfig()
			cfg.Output.Formats = []string{"xlsx"}
			err := config.Validate(cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("xlsx"))
		})

		It("should fail for invalid log level", func() {
			cfg := config.DefaultConfig()
			cfg.Logging.Level = "verbose"
			err := config.Validate(cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logging.level"))
		})
	})
})

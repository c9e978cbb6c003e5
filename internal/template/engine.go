package template

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/fjglira/qagen/internal/domain"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// FormatJSON is rendered without a template so it can be read back by ParseSheet.
const FormatJSON = "json"

// Columns is the fixed column order of every exported sheet.
var Columns = []string{"No", "Title", "Depth1", "Depth2", "Depth3", "Precondition", "Steps", "ExpectedResult"}

var extensions = map[string]string{
	"markdown": ".md",
	"csv":      ".csv",
	FormatJSON: ".json",
}

// Sheet is the final test-case table with the model's side notes.
type Sheet struct {
	Title     string                  `json:"title,omitempty"`
	Records   []domain.TestCaseRecord `json:"testCases"`
	Questions []string                `json:"questions,omitempty"`
	Summary   string                  `json:"summary,omitempty"`
}

// TemplateEngine renders a Sheet into an output format.
type TemplateEngine interface {
	Render(format string, sheet Sheet) (string, error)
	ListTemplates() []string
}

// templateData is the struct passed to templates.
type templateData struct {
	Sheet
	Columns []string
}

// DefaultEngine implements TemplateEngine.
type DefaultEngine struct {
	templates   map[string]*template.Template
	defaultName string
	templateDir string
}

// NewEngine creates a template engine from the built-in templates, then
// overrides or extends them with *.tmpl files from templateDir if set.
func NewEngine(templateDir string, defaultTemplate string) (*DefaultEngine, error) {
	engine := &DefaultEngine{
		templates:   make(map[string]*template.Template),
		defaultName: defaultTemplate,
		templateDir: templateDir,
	}

	sub, err := fs.Sub(builtin, "templates")
	if err != nil {
		return nil, domain.NewError("export", "templates", "failed to open built-in templates", err)
	}
	if err := engine.loadTemplates(sub, "templates"); err != nil {
		return nil, err
	}
	if templateDir != "" {
		if err := engine.loadTemplates(os.DirFS(templateDir), templateDir); err != nil {
			return nil, err
		}
	}

	return engine, nil
}

// loadTemplates reads all .tmpl files from fsys.
func (e *DefaultEngine) loadTemplates(fsys fs.FS, where string) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return domain.NewErrorWithSuggestion("export", where, "failed to read template directory",
			"check templates.directory in qagen.yaml", err)
	}

	funcMap := CustomFuncMap()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmpl") {
			continue
		}

		path := filepath.Join(where, entry.Name())
		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return domain.NewError("export", path, "failed to read template file", err)
		}

		name := strings.TrimSuffix(entry.Name(), ".tmpl")
		tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return domain.NewError("export", path, "failed to parse template", err)
		}

		e.templates[name] = tmpl
	}

	return nil
}

// Render renders a Sheet with the named template. An empty format uses the
// engine default; "json" is always available.
func (e *DefaultEngine) Render(format string, sheet Sheet) (string, error) {
	if format == "" {
		format = e.defaultName
	}
	if format == FormatJSON {
		return RenderJSON(sheet)
	}

	tmpl, ok := e.templates[format]
	if !ok {
		return "", domain.NewError("export", "",
			fmt.Sprintf("template %q not found (available: %s)", format, strings.Join(e.ListTemplates(), ", ")), nil)
	}

	if sheet.Title == "" {
		sheet.Title = "Test Cases"
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{Sheet: sheet, Columns: Columns}); err != nil {
		return "", domain.NewError("export", format, "failed to execute template", err)
	}
	return buf.String(), nil
}

// ListTemplates returns the names of all loaded templates, sorted.
func (e *DefaultEngine) ListTemplates() []string {
	names := make([]string, 0, len(e.templates)+1)
	for name := range e.templates {
		names = append(names, name)
	}
	names = append(names, FormatJSON)
	sort.Strings(names)
	return names
}

// Extension returns the file extension for an output format.
func Extension(format string) string {
	if ext, ok := extensions[format]; ok {
		return ext
	}
	return "." + format
}

// RenderJSON encodes the sheet as indented JSON.
func RenderJSON(sheet Sheet) (string, error) {
	if sheet.Records == nil {
		sheet.Records = []domain.TestCaseRecord{}
	}
	data, err := json.MarshalIndent(sheet, "", "  ")
	if err != nil {
		return "", domain.NewError("export", FormatJSON, "failed to encode sheet", err)
	}
	return string(data) + "\n", nil
}

// ParseSheet reads a sheet previously written by RenderJSON.
func ParseSheet(data []byte) (*Sheet, error) {
	var sheet Sheet
	if err := json.Unmarshal(data, &sheet); err != nil {
		return nil, domain.NewErrorWithSuggestion("export", "", "failed to decode sheet",
			"pass a .json file written by 'qagen generate'", err)
	}
	return &sheet, nil
}

package content

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/parser"
)

const (
	defaultMaxImageBytes = 15 * 1024 * 1024
	defaultMaxTextBytes  = 200 * 1024
)

// imageExts maps file extensions to MIME types for supported image formats.
var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// textExts lists extensions treated as readable specification text.
var textExts = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".adoc": true,
	".asciidoc": true, ".rst": true, ".csv": true, ".json": true,
	".yaml": true, ".yml": true, ".html": true, ".xml": true,
	".feature": true,
}

// structured marks text types that go through the parser registry.
var structured = map[string]bool{
	".md": true, ".markdown": true, ".adoc": true, ".asciidoc": true, ".txt": true, ".rst": true,
}

// Loader turns files on disk into content items for the model.
type Loader struct {
	cfg      config.InputConfig
	registry parser.ParserRegistry
	log      logrus.FieldLogger
}

// NewLoader creates a Loader.
func NewLoader(cfg config.InputConfig, registry parser.ParserRegistry, log logrus.FieldLogger) *Loader {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	if cfg.MaxTextBytes <= 0 {
		cfg.MaxTextBytes = defaultMaxTextBytes
	}
	return &Loader{cfg: cfg, registry: registry, log: log.WithField("component", "content")}
}

// Load classifies each file as an image or a labelled text block, in order.
// A file that cannot be read is logged and skipped.
func (l *Loader) Load(ctx context.Context, paths []string) ([]domain.ContentItem, error) {
	var items []domain.ContentItem
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := l.LoadFile(p)
		if err != nil {
			l.log.WithField("file", p).Warnf("Skipping file: %v", err)
			continue
		}
		items = append(items, item)
	}
	l.log.WithFields(logrus.Fields{"files": len(paths), "items": len(items)}).Debug("Content loaded")
	return items, nil
}

// LoadFile reads one file. Oversized, empty or binary files become a short
// text note so the model still knows they exist.
func (l *Loader) LoadFile(path string) (domain.ContentItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.ContentItem{}, domain.NewError("load", path, "cannot stat file", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	name := filepath.Base(path)

	if info.Size() == 0 {
		return domain.NewTextItem(name, fmt.Sprintf("[Empty file: %s]", name)), nil
	}

	if mimeType, ok := imageExts[ext]; ok {
		if info.Size() > l.cfg.MaxImageBytes {
			return domain.NewTextItem(name, fmt.Sprintf("[Image too large: %s, %.1f MB]", name, float64(info.Size())/(1024*1024))), nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.ContentItem{}, domain.NewError("load", path, "cannot read image", err)
		}
		return domain.NewImageItem(name, mimeType, data), nil
	}

	if !textExts[ext] && !isTextMIME(ext) && !l.sniff(path, "text/") {
		if l.sniff(path, "image/") {
			data, err := os.ReadFile(path)
			if err != nil {
				return domain.ContentItem{}, domain.NewError("load", path, "cannot read image", err)
			}
			return domain.NewImageItem(name, http.DetectContentType(data), data), nil
		}
		return domain.NewTextItem(name, fmt.Sprintf("[Unsupported file: %s, %d bytes]", name, info.Size())), nil
	}

	if info.Size() > l.cfg.MaxTextBytes {
		return domain.NewTextItem(name, fmt.Sprintf("[File too large to include: %s, %.1f KB]", name, float64(info.Size())/1024)), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ContentItem{}, domain.NewError("load", path, "cannot read text", err)
	}

	body := string(data)
	if structured[ext] && l.registry != nil {
		if p, err := l.registry.ParserFor(ext); err == nil {
			if doc, err := p.Parse(path, data); err == nil && len(doc.Sections) > 0 {
				body = parser.Outline(doc)
			}
		}
	}
	return domain.NewTextItem(name, Labelled(name, body)), nil
}

// Labelled wraps text in the file-name markers the prompts refer to.
func Labelled(name, body string) string {
	return fmt.Sprintf("--- Content of %s ---\n%s\n--- End of %s ---", name, strings.TrimSpace(body), name)
}

func isTextMIME(ext string) bool {
	return strings.HasPrefix(mime.TypeByExtension(ext), "text/")
}

// sniff reports whether the first 512 bytes look like the given MIME prefix.
func (l *Loader) sniff(path, prefix string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return false
	}
	ct := http.DetectContentType(buf[:n])
	if prefix == "text/" && ct == "application/json" {
		return true
	}
	return strings.HasPrefix(ct, prefix)
}

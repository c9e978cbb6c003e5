package figma

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/fetch"
)

// Progress stages reported by ImportPage.
const (
	StageText     = "text"
	StageImages   = "images"
	StageDownload = "download"
)

// ProgressFunc receives (stage, done, total) updates during an import.
type ProgressFunc func(stage string, done, total int)

// ImportPage converts a page's frames and text nodes into content items.
//
// Text is fetched first in batches, then render URLs for the container
// nodes, then each render is downloaded. A target whose render is missing
// or fails to download degrades to a text item carrying a failure note.
// Only an empty result is an error.
func (i *Importer) ImportPage(ctx context.Context, fileKey, token, pageID string, progress ProgressFunc, nodeIDs []string) ([]domain.ContentItem, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}
	log := i.log.WithFields(logrus.Fields{"file": fileKey, "page": pageID})

	children, err := i.pageChildren(ctx, fileKey, token, pageID)
	if err != nil {
		return nil, err
	}
	targets := selectTargets(children, nodeIDs)
	if len(targets) == 0 {
		return nil, domain.NewErrorWithSuggestion("figma", pageID, "no importable frames or text nodes on page",
			"pick a page with frames, or check the node ids", domain.ErrNoTargets)
	}
	log.WithField("targets", len(targets)).Info("Importing page")

	texts, err := i.fetchTexts(ctx, fileKey, token, targets, progress)
	if err != nil {
		return nil, err
	}

	var containers []domain.ImportTarget
	for _, t := range targets {
		if t.Kind.IsContainer() {
			containers = append(containers, t)
		}
	}
	urls, err := i.fetchImageURLs(ctx, fileKey, token, containers, progress)
	if err != nil {
		return nil, err
	}

	var items []domain.ContentItem
	for n, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(StageDownload, n, len(targets))

		text := texts[t.ID]
		imgURL, ok := urls[t.ID]
		if !ok {
			reason := "no render available"
			if t.Kind == domain.NodeText {
				reason = "text node"
			}
			items = append(items, fallbackItem(t, text, reason))
			continue
		}

		data, mime, err := i.download(ctx, imgURL)
		if err != nil {
			if domain.IsCancellation(ctx, err) {
				return nil, err
			}
			log.WithField("node", t.ID).Warnf("Image download failed, using text only: %v", err)
			items = append(items, fallbackItem(t, text, "image download failed"))
			continue
		}

		items = append(items, domain.NewImageItem(t.Name, mime, data))
		if text != "" {
			items = append(items, domain.NewTextItem(t.Name, textBlock(t, text)))
		}
	}
	progress(StageDownload, len(targets), len(targets))

	if len(items) == 0 {
		return nil, domain.NewError("figma", pageID, "import produced no content", domain.ErrNoContent)
	}
	log.WithField("items", len(items)).Info("Page imported")
	return items, nil
}

// selectTargets keeps importable children, restricted to ids when given,
// in page order.
func selectTargets(children []domain.ImportTarget, ids []string) []domain.ImportTarget {
	allow := make(map[string]bool, len(ids))
	for _, id := range ids {
		allow[strings.TrimSpace(id)] = true
	}
	var out []domain.ImportTarget
	for _, c := range children {
		if !c.Kind.IsImportable() {
			continue
		}
		if len(allow) > 0 && !allow[c.ID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// fetchTexts collects the text of every target. A failed batch is logged and
// its targets get no text.
func (i *Importer) fetchTexts(ctx context.Context, fileKey, token string, targets []domain.ImportTarget, progress ProgressFunc) (map[string]string, error) {
	texts := make(map[string]string, len(targets))
	batches := chunk(targets, i.cfg.TextBatchSize)

	for n, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if n > 0 {
			if err := i.sleep(ctx, i.jitter(i.cfg.TextCooldown.Min, i.cfg.TextCooldown.Max)); err != nil {
				return nil, err
			}
		}
		progress(StageText, n, len(batches))

		res, err := i.getJSON(ctx, "/v1/files/"+url.PathEscape(fileKey)+"/nodes",
			url.Values{"ids": {joinIDs(batch)}}, token)
		if err != nil {
			if domain.IsCancellation(ctx, err) {
				return nil, err
			}
			i.log.WithField("batch", n+1).Warnf("Text batch failed: %v", err)
			continue
		}

		nodes := res.Get("nodes")
		for _, t := range batch {
			doc := field(nodes, t.ID).Get("document")
			if lines := CollectText(doc, i.cfg.MaxTreeDepth); len(lines) > 0 {
				texts[t.ID] = strings.Join(lines, "\n")
			}
		}
	}
	progress(StageText, len(batches), len(batches))
	return texts, nil
}

// fetchImageURLs resolves render URLs for containers, retrying misses once at
// the fallback scale.
func (i *Importer) fetchImageURLs(ctx context.Context, fileKey, token string, containers []domain.ImportTarget, progress ProgressFunc) (map[string]string, error) {
	urls := make(map[string]string, len(containers))
	if len(containers) == 0 {
		return urls, nil
	}

	if err := i.renderBatches(ctx, fileKey, token, containers, i.cfg.ImageScale, urls, progress); err != nil {
		return nil, err
	}

	var missing []domain.ImportTarget
	for _, t := range containers {
		if _, ok := urls[t.ID]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		i.log.WithField("missing", len(missing)).Infof("Retrying renders at scale %g", i.cfg.FallbackScale)
		if err := i.sleep(ctx, i.jitter(i.cfg.ImageCooldown.Min, i.cfg.ImageCooldown.Max)); err != nil {
			return nil, err
		}
		if err := i.renderBatches(ctx, fileKey, token, missing, i.cfg.FallbackScale, urls, progress); err != nil {
			return nil, err
		}
	}
	return urls, nil
}

func (i *Importer) renderBatches(ctx context.Context, fileKey, token string, targets []domain.ImportTarget, scale float64, urls map[string]string, progress ProgressFunc) error {
	batches := chunk(targets, i.cfg.ImageBatchSize)
	for n, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n > 0 {
			if err := i.sleep(ctx, i.jitter(i.cfg.ImageCooldown.Min, i.cfg.ImageCooldown.Max)); err != nil {
				return err
			}
		}
		progress(StageImages, n, len(batches))

		res, err := i.getJSON(ctx, "/v1/images/"+url.PathEscape(fileKey), url.Values{
			"ids":    {joinIDs(batch)},
			"scale":  {strconv.FormatFloat(scale, 'g', -1, 64)},
			"format": {"png"},
		}, token)
		if err != nil {
			if domain.IsCancellation(ctx, err) {
				return err
			}
			i.log.WithFields(logrus.Fields{"batch": n + 1, "scale": scale}).Warnf("Render batch failed: %v", err)
			continue
		}
		if msg := res.Get("err"); msg.Type == gjson.String && msg.String() != "" {
			i.log.WithField("batch", n+1).Warnf("Render batch reported: %s", msg.String())
		}

		images := res.Get("images")
		for _, t := range batch {
			if u := field(images, t.ID); u.Type == gjson.String && u.String() != "" {
				urls[t.ID] = u.String()
			}
		}
	}
	progress(StageImages, len(batches), len(batches))
	return nil
}

// download fetches a rendered image through the image relays.
func (i *Importer) download(ctx context.Context, imgURL string) ([]byte, string, error) {
	resp, err := i.fetch.FetchWithBackoff(ctx, imgURL, nil, fetch.ClassImage, i.cfg.DownloadRetries, i.cfg.DownloadDelay)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return nil, "", fmt.Errorf("empty image body")
	}

	mime := http.DetectContentType(resp.Body)
	if !strings.HasPrefix(mime, "image/") {
		// Some relays send a generic type; trust the header only if it names an image.
		ct := resp.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "image/") {
			return nil, "", fmt.Errorf("not an image (%s)", mime)
		}
		mime = strings.TrimSpace(strings.Split(ct, ";")[0])
	}
	return resp.Body, mime, nil
}

func textBlock(t domain.ImportTarget, text string) string {
	return fmt.Sprintf("--- Frame: %s ---\n%s", t.Name, text)
}

func fallbackItem(t domain.ImportTarget, text, reason string) domain.ContentItem {
	if text == "" {
		text = "(no text)"
	}
	return domain.NewTextItem(t.Name, fmt.Sprintf("--- Frame: %s [image unavailable: %s] ---\n%s", t.Name, reason, text))
}

func joinIDs(targets []domain.ImportTarget) string {
	ids := make([]string, len(targets))
	for n, t := range targets {
		ids[n] = t.ID
	}
	return strings.Join(ids, ",")
}

func chunk(targets []domain.ImportTarget, size int) [][]domain.ImportTarget {
	if size <= 0 {
		size = 1
	}
	var out [][]domain.ImportTarget
	for start := 0; start < len(targets); start += size {
		end := min(start+size, len(targets))
		out = append(out, targets[start:end])
	}
	return out
}

package figma

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/fetch"
	"github.com/fjglira/qagen/internal/retry"
)

// TokenHeader carries the personal access token on every API call.
const TokenHeader = "X-Figma-Token"

// Importer reads pages, frames, text and renders from the Figma REST API
// through the fetch layer.
type Importer struct {
	fetch    *fetch.Client
	cfg      config.FigmaConfig
	fetchCfg config.FetchConfig
	log      logrus.FieldLogger
	sleep    retry.SleepFunc
	jitter   func(min, max time.Duration) time.Duration
}

// Option customises an Importer.
type Option func(*Importer)

// WithSleep replaces the cooldown delay between batches.
func WithSleep(fn retry.SleepFunc) Option {
	return func(i *Importer) { i.sleep = fn }
}

// WithJitter replaces the cooldown duration source.
func WithJitter(fn func(min, max time.Duration) time.Duration) Option {
	return func(i *Importer) { i.jitter = fn }
}

// NewImporter creates an Importer.
func NewImporter(cfg config.FigmaConfig, fetchCfg config.FetchConfig, client *fetch.Client, log logrus.FieldLogger, opts ...Option) *Importer {
	i := &Importer{
		fetch:    client,
		cfg:      cfg,
		fetchCfg: fetchCfg,
		log:      log.WithField("component", "figma"),
		sleep:    retry.Sleep,
		jitter:   retry.Jitter,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ListPages returns the document's top-level canvases.
func (i *Importer) ListPages(ctx context.Context, fileKey, token string) ([]domain.Page, error) {
	doc, err := i.getJSON(ctx, "/v1/files/"+url.PathEscape(fileKey), url.Values{"depth": {"1"}}, token)
	if err != nil {
		return nil, err
	}

	var pages []domain.Page
	doc.Get("document.children").ForEach(func(_, node gjson.Result) bool {
		if domain.NodeKind(node.Get("type").String()) == domain.NodeCanvas {
			pages = append(pages, domain.Page{ID: node.Get("id").String(), Name: node.Get("name").String()})
		}
		return true
	})
	if len(pages) == 0 {
		return nil, domain.NewErrorWithSuggestion("figma", fileKey, "document has no pages",
			"check the file key; it is the segment after /file/ or /design/ in the Figma URL", domain.ErrNoPages)
	}
	return pages, nil
}

// ListFrames returns the page's immediate children that can be rendered.
func (i *Importer) ListFrames(ctx context.Context, fileKey, token, pageID string) ([]domain.ImportTarget, error) {
	children, err := i.pageChildren(ctx, fileKey, token, pageID)
	if err != nil {
		return nil, err
	}
	var frames []domain.ImportTarget
	for _, t := range children {
		if t.Kind.IsContainer() {
			frames = append(frames, t)
		}
	}
	return frames, nil
}

// pageChildren fetches the page node one level deep.
func (i *Importer) pageChildren(ctx context.Context, fileKey, token, pageID string) ([]domain.ImportTarget, error) {
	res, err := i.getJSON(ctx, "/v1/files/"+url.PathEscape(fileKey)+"/nodes",
		url.Values{"ids": {pageID}, "depth": {"1"}}, token)
	if err != nil {
		return nil, err
	}

	page := field(res.Get("nodes"), pageID)
	if !page.Exists() || page.Type == gjson.Null {
		return nil, domain.NewError("figma", pageID, "page not found in document", domain.ErrNotFound)
	}

	var out []domain.ImportTarget
	page.Get("document.children").ForEach(func(_, node gjson.Result) bool {
		out = append(out, domain.ImportTarget{
			ID:   node.Get("id").String(),
			Name: node.Get("name").String(),
			Kind: domain.NodeKind(node.Get("type").String()),
		})
		return true
	})
	return out, nil
}

// getJSON performs an API call with rate-limit handling and returns the parsed body.
func (i *Importer) getJSON(ctx context.Context, path string, query url.Values, token string) (gjson.Result, error) {
	target := strings.TrimRight(i.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	headers := http.Header{}
	headers.Set(TokenHeader, token)

	resp, err := i.fetch.FetchWithBackoff(ctx, target, headers, fetch.ClassAPI, i.fetchCfg.Retries, i.fetchCfg.BaseDelay)
	if err != nil {
		return gjson.Result{}, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return gjson.Result{}, domain.NewErrorWithSuggestion("figma", path, "not found",
			"check the file key and node ids", domain.ErrNotFound)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return gjson.Result{}, domain.NewErrorWithSuggestion("figma", path,
			fmt.Sprintf("access denied (HTTP %d) for token %s", resp.StatusCode, domain.MaskToken(token)),
			"check that the token is valid and has access to this file", nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return gjson.Result{}, domain.NewError("figma", path, fmt.Sprintf("unexpected HTTP %d", resp.StatusCode), nil)
	}

	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, domain.NewError("figma", path, "response is not valid JSON", nil)
	}
	return gjson.ParseBytes(resp.Body), nil
}

// field returns the value of key on obj. Node ids contain ':' and other
// characters that are awkward in gjson paths, so keys are matched directly.
func field(obj gjson.Result, key string) gjson.Result {
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			found = v
			return false
		}
		return true
	})
	return found
}

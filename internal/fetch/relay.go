package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/retry"
)

// ContentClass selects which relay list a request goes through.
type ContentClass int

const (
	// ClassAPI is for JSON API calls; caller headers are forwarded.
	ClassAPI ContentClass = iota
	// ClassImage is for binary downloads; no caller headers are sent.
	ClassImage
)

func (c ContentClass) String() string {
	if c == ClassImage {
		return "image"
	}
	return "api"
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Relay      string // relay template that produced the response
}

// Client performs relayed GET requests. It keeps no state between calls
// beyond its configuration.
type Client struct {
	http  *http.Client
	cfg   config.FetchConfig
	log   logrus.FieldLogger
	sleep retry.SleepFunc
	now   func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithSleep replaces the delay primitive, e.g. to observe waits in tests.
func WithSleep(fn retry.SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithClock replaces the time source used for cache busting.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg config.FetchConfig, httpClient *http.Client, log logrus.FieldLogger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{
		http:  httpClient,
		cfg:   cfg,
		log:   log.WithField("component", "fetch"),
		sleep: retry.Sleep,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) relays(class ContentClass) []string {
	if class == ClassImage {
		return c.cfg.ImageRelays
	}
	return c.cfg.APIRelays
}

// FetchThroughRelay tries each relay of the class in priority order and
// returns the first usable response.
//
// 404 and any non-429 status below 500 are returned as-is. A 429 moves on to
// the next relay after a short pause, except on the last relay where it is
// returned so the caller can back off. 5xx and transport errors move on.
// Cancellation is returned immediately.
func (c *Client) FetchThroughRelay(ctx context.Context, target string, headers http.Header, class ContentClass) (*Response, error) {
	relays := c.relays(class)
	var lastErr error

	for i, tmpl := range relays {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		relayURL := BuildRelayURL(tmpl, target, c.cfg.CacheBust && class == ClassAPI, c.now())
		resp, err := c.do(ctx, relayURL, headers, class)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.log.WithFields(logrus.Fields{"relay": i + 1, "class": class}).Warnf("Relay request failed: %v", err)
			lastErr = err
			continue
		}
		resp.Relay = tmpl

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if i == len(relays)-1 {
				return resp, nil
			}
			c.log.WithFields(logrus.Fields{"relay": i + 1, "class": class}).Infof("Rate limited via relay, trying next")
			if err := c.sleep(ctx, c.cfg.RelayPause); err != nil {
				return nil, err
			}
			continue
		case resp.StatusCode >= 500:
			c.log.WithFields(logrus.Fields{"relay": i + 1, "class": class}).Debugf("Relay returned HTTP %d", resp.StatusCode)
			continue
		default:
			return resp, nil
		}
	}

	cause := domain.ErrNoRelay
	if lastErr != nil {
		cause = errors.Join(domain.ErrNoRelay, lastErr)
	}
	return nil, domain.NewErrorWithSuggestion("fetch", redact(target),
		fmt.Sprintf("all %d %s relays failed", len(relays), class),
		"check network connectivity or configure different relays",
		cause)
}

func (c *Client) do(ctx context.Context, relayURL string, headers http.Header, class ContentClass) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, relayURL, nil)
	if err != nil {
		return nil, err
	}
	if class == ClassAPI {
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// BuildRelayURL expands a relay template. {url} receives the query-escaped
// target and {rawurl} the target as-is. With cacheBust a _cb timestamp is
// added to the target so relays don't serve a cached failure.
func BuildRelayURL(tmpl, target string, cacheBust bool, now time.Time) string {
	if cacheBust {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target = target + sep + "_cb=" + strconv.FormatInt(now.UnixMilli(), 10)
	}
	out := strings.ReplaceAll(tmpl, "{rawurl}", target)
	return strings.ReplaceAll(out, "{url}", url.QueryEscape(target))
}

// redact strips the query string so tokens in URLs never reach logs or errors.
func redact(target string) string {
	if i := strings.Index(target, "?"); i >= 0 {
		return target[:i]
	}
	return target
}

package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fjglira/qagen/internal/domain"
)

// FetchWithBackoff wraps FetchThroughRelay with rate-limit and network retries.
//
// On 429 it waits for Retry-After (plus a small buffer) or the current backoff
// base, then grows the base by BackoffFactor. A mandated wait above
// BanThreshold is treated as a block and fails immediately with ErrBanned.
// Transport failures are retried after NetworkRetryDelay. Each retry consumes
// one of retries; cancellation is never retried.
func (c *Client) FetchWithBackoff(ctx context.Context, target string, headers http.Header, class ContentClass, retries int, baseDelay time.Duration) (*Response, error) {
	delay := baseDelay
	if delay < c.cfg.MinDelay {
		delay = c.cfg.MinDelay
	}
	factor := c.cfg.BackoffFactor
	if factor < 1 {
		factor = 2
	}

	for {
		resp, err := c.FetchThroughRelay(ctx, target, headers, class)
		if err != nil {
			if domain.IsCancellation(ctx, err) {
				return nil, err
			}
			if retries <= 0 {
				return nil, domain.NewErrorWithSuggestion("fetch", redact(target),
					"network request failed after retries",
					"check network connectivity; the design API or relays may be unreachable",
					errors.Join(domain.ErrNetwork, err))
			}
			c.log.WithField("retries_left", retries).Warnf("Fetch failed, retrying in %s: %v", c.cfg.NetworkRetryDelay, err)
			if err := c.sleep(ctx, c.cfg.NetworkRetryDelay); err != nil {
				return nil, err
			}
			retries--
			continue
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		wait := delay
		if ra, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			wait = addSaturating(ra, c.cfg.RetryAfterBuffer)
		}

		if wait > c.cfg.BanThreshold {
			return nil, domain.NewErrorWithSuggestion("fetch", redact(target),
				fmt.Sprintf("rate limit demands a %s wait", wait.Round(time.Second)),
				fmt.Sprintf("the access token looks blocked; wait about %s or switch to a different token", humanWait(wait)),
				domain.ErrBanned)
		}

		if retries <= 0 {
			return nil, domain.NewErrorWithSuggestion("fetch", redact(target),
				"still rate limited after all retries",
				"wait a few minutes before importing again, or import fewer frames at once",
				domain.ErrRateLimited)
		}

		c.log.WithFields(logrus.Fields{"wait": wait, "retries_left": retries}).Infof("Rate limited (429), backing off")
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		retries--
		delay = time.Duration(float64(delay) * factor)
	}
}

// ParseRetryAfter reads a Retry-After value in seconds or HTTP-date form.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		if secs >= float64(maxDuration/time.Second) {
			return maxDuration, true
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// maxDuration caps waits that would overflow time.Duration.
const maxDuration = time.Duration(math.MaxInt64)

func addSaturating(a, b time.Duration) time.Duration {
	if b > 0 && a > maxDuration-b {
		return maxDuration
	}
	return a + b
}

func humanWait(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	if d >= time.Minute {
		return fmt.Sprintf("%d minutes", int(d.Minutes()+0.5))
	}
	return fmt.Sprintf("%d seconds", int(d.Seconds()+0.5))
}

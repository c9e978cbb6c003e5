package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxAttempts is the default number of attempts, including the first.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the base delay for exponential backoff.
	DefaultBaseDelay = 2 * time.Second
	// DefaultMaxJitterPercent is the maximum jitter percentage (0-25%).
	DefaultMaxJitterPercent = 25
)

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds retry configuration.
type Config struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxJitterPercent int
	Log              logrus.FieldLogger                          // nil for no logging
	OnRetry          func(delay time.Duration, attempt, max int) // Optional callback for retry notifications
	Sleep            SleepFunc                                   // nil uses Sleep
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      DefaultMaxAttempts,
		BaseDelay:        DefaultBaseDelay,
		MaxJitterPercent: DefaultMaxJitterPercent,
	}
}

// Operation is a function that can be retried.
type Operation func(ctx context.Context) error

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so Execute returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Execute runs op until it succeeds, returns a permanent error, the context
// is done, or MaxAttempts is reached. Cancellation is never retried.
// The returned error is the last operation error (permanent wrapper removed).
func Execute(ctx context.Context, cfg Config, op Operation) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxJitterPercent < 0 || cfg.MaxJitterPercent > 100 {
		cfg.MaxJitterPercent = DefaultMaxJitterPercent
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if err := contextErr(ctx, lastErr); err != nil {
			return err
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			if cfg.Log != nil {
				cfg.Log.Debugf("Non-retryable error, stopping: %v", perm.err)
			}
			return perm.err
		}

		// Check if we've exhausted attempts
		if attempt+1 >= cfg.MaxAttempts {
			if cfg.Log != nil {
				cfg.Log.Warnf("All %d attempts exhausted: %v", cfg.MaxAttempts, lastErr)
			}
			return lastErr
		}

		delay := CalculateDelay(cfg.BaseDelay, attempt, cfg.MaxJitterPercent)
		if cfg.OnRetry != nil {
			cfg.OnRetry(delay, attempt+1, cfg.MaxAttempts)
		} else if cfg.Log != nil {
			cfg.Log.Infof("Retrying in %s... (attempt %d/%d): %v", delay.Round(time.Millisecond), attempt+1, cfg.MaxAttempts, lastErr)
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// contextErr returns the cancellation error to surface if the operation was
// interrupted by ctx, preferring the operation's own error when it already
// carries the cancellation. Deadlines the operation set for itself are
// ordinary failures while ctx is live.
func contextErr(ctx context.Context, opErr error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(opErr, ctxErr) {
			return opErr
		}
		return ctxErr
	}
	return nil
}

// CalculateDelay returns the delay for a given attempt using exponential backoff with jitter.
// Formula: base * 2^attempt + jitter (0-maxJitterPercent% of calculated delay)
func CalculateDelay(base time.Duration, attempt int, maxJitterPercent int) time.Duration {
	multiplier := 1 << attempt // 2^attempt (1, 2, 4, 8, ...)
	delay := base * time.Duration(multiplier)

	if maxJitterPercent > 0 {
		jitterRange := float64(delay) * float64(maxJitterPercent) / 100.0
		jitter := time.Duration(rand.Float64() * jitterRange)
		delay += jitter
	}

	return delay
}

// Jitter returns a duration drawn uniformly from [min, max].
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// Sleep waits for d, returning ctx.Err() as soon as the context is done.
// The timer is stopped on cancellation so nothing is left pending.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

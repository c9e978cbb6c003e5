package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Wrap them in an *Error (or with %w) so callers can match
// with errors.Is while still getting a contextual message.
var (
	ErrRateLimited      = errors.New("rate limit retries exhausted")
	ErrBanned           = errors.New("access blocked by design API")
	ErrNetwork          = errors.New("network failure")
	ErrNoRelay          = errors.New("no relay succeeded")
	ErrNotFound         = errors.New("resource not found")
	ErrGenerationFailed = errors.New("generation failed")
	ErrNoPages          = errors.New("document has no pages")
	ErrNoTargets        = errors.New("no importable nodes")
	ErrNoContent        = errors.New("no content produced")
)

// Error is the base error type with context.
type Error struct {
	Stage      string // "config", "scan", "load", "fetch", "figma", "model", "pipeline", "export", "write"
	Target     string
	Message    string
	Suggestion string
	Cause      error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("[%s]", e.Stage)
	if e.Target != "" {
		s += fmt.Sprintf(" %s", e.Target)
	}
	s += fmt.Sprintf(": %s", e.Message)
	if e.Cause != nil {
		s += fmt.Sprintf(": %v", e.Cause)
	}
	if e.Suggestion != "" {
		s += fmt.Sprintf(" (hint: %s)", e.Suggestion)
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(stage, target, message string, cause error) *Error {
	return &Error{
		Stage:   stage,
		Target:  target,
		Message: message,
		Cause:   cause,
	}
}

// NewErrorWithSuggestion creates a new Error carrying a remediation hint for the user.
func NewErrorWithSuggestion(stage, target, message, suggestion string, cause error) *Error {
	return &Error{
		Stage:      stage,
		Target:     target,
		Message:    message,
		Suggestion: suggestion,
		Cause:      cause,
	}
}

// IsCancellation reports whether err ended an operation because the caller's
// ctx is done. A timeout inside a single request while ctx is still live
// (an http.Client timeout, a per-call model deadline) is an ordinary failure.
// Cancellation is never retried, backed off, or degraded.
func IsCancellation(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}

// MaskToken shortens a credential for display in error messages.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

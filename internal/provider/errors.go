package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
)

// NotFoundError means the input does not resolve to a known entity.
// It is surfaced to the caller and never retried.
type NotFoundError struct {
	Source model.Source
	Input  string
}

func (e *NotFoundError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("%s: not found", e.Source)
	}
	return fmt.Sprintf("%s: %q not found", e.Source, e.Input)
}

// RateLimitedError means the upstream is throttling us. RetryAfter is the
// provider's hint when it supplied one, zero otherwise.
type RateLimitedError struct {
	Source     model.Source
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Source)
}

// TransientError wraps a network or timeout failure. Eligible for the
// cache's serve-stale fallback or a bounded retry.
type TransientError struct {
	Source model.Source
	Op     string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ValidationError means an upstream payload was malformed. It is never
// silently coerced into defaults.
type ValidationError struct {
	Source model.Source
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid payload field %q: %s", e.Source, e.Field, e.Reason)
}

// IsNotFound reports whether err is a resolution failure.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsRateLimited reports whether err is upstream throttling, returning the
// retry hint when present.
func IsRateLimited(err error) (time.Duration, bool) {
	var e *RateLimitedError
	if errors.As(err, &e) {
		return e.RetryAfter, true
	}
	return 0, false
}

// IsTransient reports whether err is a network/timeout failure.
func IsTransient(err error) bool {
	var e *TransientError
	return errors.As(err, &e)
}

// IsValidation reports whether err is a malformed-payload failure.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

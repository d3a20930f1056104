// File: internal/infra/adapters/ai/retry.go
package ai

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"google.golang.org/genai"

	"invest-research-backend/internal/infra/metrics"
)

// RetryConfig bounds the retry policy for transient-overload AI failures.
type RetryConfig struct {
	MaxRetries   int           // retries after the initial attempt
	InitialDelay time.Duration // doubles (Multiplier) each retry
	MaxDelay     time.Duration // cap for any single delay
	Multiplier   float64
	Operation    string // metrics label, e.g. "chat", "title"
}

// DefaultRetryConfig mirrors the provider's recommended overload handling:
// up to 4 total attempts with 1s/2s/4s delays, capped at 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// transientHints are matched case-insensitively against the stringified
// error when no structured status code is available. Coarse on purpose: the
// SDKs do not expose codes reliably for every failure shape.
var transientHints = []string{"503", "overloaded", "unavailable"}

// IsTransient reports whether err looks like a temporary overload worth
// retrying. Structured codes are checked first; substring matching is the
// fallback taxonomy. The entire classification lives behind this one
// predicate so upstream message changes only ever touch this file.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 503
	}
	msg := strings.ToLower(err.Error())
	for _, h := range transientHints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}

// Retry invokes fn, retrying transient failures with exponential backoff.
// The happy path returns immediately with no delay. Non-transient errors and
// exhausted budgets return the last error unchanged so callers can match on
// it. The sleep respects ctx cancellation.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}

	for attempt := 0; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			metrics.IncAIRetriesExhausted(cfg.Operation)
			return zero, err
		}

		delay := backoffDelay(cfg, attempt)
		metrics.IncAIRetry(cfg.Operation)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes min(initial * multiplier^attempt, max). Attempt is
// zero-based: the first retry waits InitialDelay.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

package engine

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/stratus-io/stratus/internal/logging"
)

const (
	// DefaultTimeout bounds a single resource operation when the
	// resource does not declare its own.
	DefaultTimeout = 30 * time.Minute

	// DefaultRetryMax is the number of retries for transient failures.
	DefaultRetryMax = 3
)

// RetryPolicy controls retry behavior for provider operations.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the policy used by the executor unless
// overridden.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultRetryMax,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}
}

// RetryWithBackoff runs fn, retrying transient failures with exponential
// backoff and jitter. Non-transient errors fail immediately.
func RetryWithBackoff(ctx context.Context, policy RetryPolicy, addr string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy, attempt)
			logging.Warn("retrying after transient failure",
				"resource", addr, "attempt", attempt, "delay", delay.String(), "error", lastErr.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransientError(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	delay := policy.BaseDelay << (attempt - 1)
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	// Full jitter keeps concurrent retries from synchronizing.
	return time.Duration(rand.Int63n(int64(delay)) + int64(delay)/2)
}

// IsTransientError reports whether an error looks retryable (throttling,
// timeouts, transient service faults).
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"timed out",
		"throttl",
		"too many requests",
		"rate exceeded",
		"service unavailable",
		"connection refused",
		"connection reset",
		"temporarily unavailable",
		"internal server error",
		"try again",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

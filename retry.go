package esplora

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

const (
	// DefaultMaxRetries is the default number of retries after the first
	// attempt.
	DefaultMaxRetries = 6

	// DefaultBaseBackoff is the delay before the first retry. It doubles
	// with every attempt.
	DefaultBaseBackoff = 256 * time.Millisecond
)

// RetryConfig controls Retry. The client never retries on its own; callers
// opt in by wrapping calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseBackoff is the delay before the first retry.
	BaseBackoff time.Duration

	// Clock is used for waiting.
	Clock clock.Clock
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
		Clock:       clock.NewDefaultClock(),
	}
}

// Retry runs call until it succeeds, fails with an error IsRetryable rejects,
// or the retries are used up. The last error is returned.
func Retry[T any](ctx context.Context, cfg *RetryConfig,
	call func(context.Context) (T, error)) (T, error) {

	for attempt := 0; ; attempt++ {
		val, err := call(ctx)
		if err == nil || !IsRetryable(err) {
			return val, err
		}
		if attempt >= cfg.MaxRetries {
			return val, err
		}

		delay := computeBackoff(err, attempt, cfg.BaseBackoff,
			cfg.Clock.Now())

		log.Debugf("Retrying after %v (attempt %d/%d): %v", delay,
			attempt+1, cfg.MaxRetries, err)

		select {
		case <-cfg.Clock.TickAfter(delay):
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// computeBackoff returns the delay before the next attempt. A Retry-After
// header sent with the failed response takes precedence over exponential
// backoff.
func computeBackoff(err error, attempt int, base time.Duration,
	now time.Time) time.Duration {

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if delay, ok := parseRetryAfter(statusErr.Header, now); ok {
			return delay
		}
	}

	return base << uint(attempt)
}

// parseRetryAfter reads a Retry-After header given either as a number of
// seconds or an HTTP date. Dates in the past yield zero.
func parseRetryAfter(header http.Header, now time.Time) (time.Duration,
	bool) {

	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseUint(value, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}

	if delay := at.Sub(now); delay > 0 {
		return delay, true
	}

	return 0, true
}

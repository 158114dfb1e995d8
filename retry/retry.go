// Package retry implements the shared retry policy used by background
// tasks and synchronous provider calls alike.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/mnemo-ai/mnemo"
)

// Default policy knobs: three attempts, exponential backoff starting at one
// second with factor two and ±20% jitter.
const (
	DefaultMaxAttempts = 3
	DefaultBaseWait    = 1 * time.Second
	DefaultFactor      = 2.0
	DefaultJitter      = 0.2
)

// Policy describes how failures are retried. The zero value is unusable;
// use DefaultPolicy or fill every field.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseWait is the delay before the second attempt.
	BaseWait time.Duration

	// Factor multiplies the delay after each failed attempt.
	Factor float64

	// Jitter is the fraction of random spread applied to each delay,
	// e.g. 0.2 for ±20%.
	Jitter float64
}

// DefaultPolicy returns the service-wide default policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseWait:    DefaultBaseWait,
		Factor:      DefaultFactor,
		Jitter:      DefaultJitter,
	}
}

// Do runs f until it succeeds, fails non-transiently, or the policy is
// exhausted. The last error is returned. Context cancellation aborts
// between attempts.
func (p Policy) Do(ctx context.Context, f func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay(attempt)):
			}
		}
		err := f()
		if err == nil {
			return nil
		}
		lastErr = err
		if !Retryable(err) {
			return err
		}
	}
	return lastErr
}

// Delay computes the backoff before the given attempt (attempt 1 is the
// first retry), with jitter applied.
func (p Policy) Delay(attempt int) time.Duration {
	backoff := float64(p.BaseWait) * math.Pow(p.Factor, float64(attempt-1))
	if p.Jitter > 0 {
		spread := backoff * p.Jitter
		backoff += (rand.Float64()*2 - 1) * spread
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}

// Retryable reports whether err is worth retrying: transient errors per the
// service classification, or API errors with a retryable status code.
func Retryable(err error) bool {
	if mnemo.IsTransient(err) {
		return true
	}
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return RetryableStatus(apiErr.StatusCode())
	}
	return false
}

// RetryableStatus reports whether an HTTP status code counts as transient.
func RetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

// APIError is implemented by provider errors that carry an HTTP status.
type APIError interface {
	error
	StatusCode() int
}

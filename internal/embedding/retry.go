package embedding

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// RetryPolicy bounds retries of transient embedding-provider failures.
// The delay doubles per attempt, starting at InitialDelay and capped at
// MaxDelay.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}

// delay returns the backoff before the given retry attempt (0-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.InitialDelay << uint(attempt)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// sleep waits out the backoff or returns early when ctx is done.
func (p RetryPolicy) sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsTransient classifies a provider error as retryable. Rate limits,
// server-side unavailability and timeouts are transient; everything else
// (bad request, auth, cancellation) is terminal for the batch.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429",
		"rate limit",
		"too many requests",
		"timeout",
		"timed out",
		"temporarily",
		"unavailable",
		"overloaded",
		"connection refused",
		"connection reset",
		"status code: 500",
		"status code: 502",
		"status code: 503",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

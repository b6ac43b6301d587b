// Package retry provides bounded retry with exponential backoff for
// transient upstream failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrMaxRetriesExceeded is returned when all attempts have been exhausted
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy configures retry behavior
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        float64
	RetryableFunc func(error) bool
}

// DefaultPolicy returns a policy suitable for short-lived HTTP lookups
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Validate checks the policy for usable values
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive, got %s", p.InitialDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %f", p.Multiplier)
	}
	return nil
}

// backoff computes the delay before the given attempt (1-based)
func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay += delay * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}

// Do executes operation with retry according to the policy. Only errors the
// policy classifies as retryable are attempted again; context cancellation
// aborts immediately.
func Do(ctx context.Context, policy Policy, operation func() error) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if policy.RetryableFunc != nil && !policy.RetryableFunc(lastErr) {
			return lastErr
		}

		if attempt >= policy.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.backoff(attempt + 1)):
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// Package retry centralizes the exponential-backoff policy shared by the
// embedding and vector store clients. Call sites pass a Config instead of
// rolling their own loops, so attempt counts and delays are tuned in one
// place.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

// Default policy values
const (
	MaxAttempts       = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Config configures exponential backoff retry behavior
type Config struct {
	MaxAttempts int           // Total attempts, including the first call
	BaseDelay   time.Duration // Initial delay between attempts
	MaxDelay    time.Duration // Cap on the delay between attempts
	Multiplier  float64       // Exponential backoff multiplier
	Jitter      float64       // Fraction of the delay randomized, 0..1
}

// DefaultConfig returns sensible defaults for API retry
func DefaultConfig() Config {
	return Config{
		MaxAttempts: MaxAttempts,
		BaseDelay:   time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:    time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier:  BackoffMultiplier,
		Jitter:      0.2,
	}
}

// transientError marks a failure worth retrying (rate limit, 5xx, network)
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps an error as retryable
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether an error should be retried. Timeouts and other
// network-level failures count as transient.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Do executes fn with exponential backoff retry logic. Permanent errors
// return immediately; retry stops on context cancellation.
func Do[T any](ctx context.Context, config Config, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := config.BaseDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < config.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(jittered(backoff, config.Jitter)):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxDelay {
					backoff = config.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}

// jittered randomizes a delay by up to frac of its value in either direction
func jittered(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * frac * float64(d)
	j := time.Duration(float64(d) + delta)
	if j < 0 {
		return 0
	}
	return j
}

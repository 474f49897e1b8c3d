// Package retry implements the retry/backoff controller for transfer
// attempts: a fallible unit of work is executed under a per-attempt deadline
// with bounded retries and exponentially increasing, capped delay between
// attempts.
//
// The controller is stateless across calls, so it is safe to invoke
// concurrently for independent transfers.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
)

// Policy is the pure configuration for the retry controller. The delay
// sequence it produces is deterministic:
// delay[0] = InitialDelay, delay[n] = min(delay[n-1] * Multiplier, MaxDelay).
type Policy struct {
	// MaxAttempts is the total number of attempts, at least 1.
	MaxAttempts int
	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts, greater than 1.0.
	Multiplier float64
	// AttemptTimeout bounds each individual attempt.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the reference retry configuration: 5 attempts,
// 500ms initial delay doubling up to 30s, 10s per attempt.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		AttemptTimeout: 10 * time.Second,
	}
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive, got %v", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max delay %v below initial delay %v", p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier <= 1.0 {
		return fmt.Errorf("multiplier must be > 1.0, got %f", p.Multiplier)
	}
	if p.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive, got %v", p.AttemptTimeout)
	}
	return nil
}

// Delays returns the full backoff sequence the policy produces between
// attempts (MaxAttempts-1 entries).
func (p Policy) Delays() []time.Duration {
	if p.MaxAttempts < 2 {
		return nil
	}
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	b := p.newBackOff()
	for i := 0; i < p.MaxAttempts-1; i++ {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}

// newBackOff builds the exponential schedule. RandomizationFactor is zero so
// the sequence is exactly reproducible.
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// ExhaustedError reports that every attempt failed. Last is the error from
// the final attempt.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Last }

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Execute aborts immediately instead of retrying.
// Protocol and resource failures use this; network failures stay retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// AttemptFunc performs one connection + transfer cycle. The context carries
// the per-attempt deadline; implementations must honor it.
type AttemptFunc func(ctx context.Context) error

// Execute runs attempt under the policy. On success it returns immediately.
// A Permanent failure aborts without further attempts and is returned
// unwrapped. Cancellation of ctx between attempts short-circuits to
// ctx.Err() without consuming retries. After the final failed attempt the
// last error is returned wrapped in *ExhaustedError.
func Execute(ctx context.Context, p Policy, attempt AttemptFunc) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}

	b := p.newBackOff()
	var lastErr error

	for n := 1; n <= p.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		err := attempt(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// The caller cancelled mid-attempt; this is not a failure.
			return ctx.Err()
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			logrus.WithFields(logrus.Fields{
				"function": "Execute",
				"attempt":  n,
				"error":    pe.err.Error(),
			}).Warn("Permanent failure, aborting retries")
			return pe.err
		}

		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("attempt timed out after %v: %w", p.AttemptTimeout, err)
		}
		lastErr = err

		logrus.WithFields(logrus.Fields{
			"function":     "Execute",
			"attempt":      n,
			"max_attempts": p.MaxAttempts,
			"error":        err.Error(),
		}).Warn("Attempt failed")

		if n == p.MaxAttempts {
			break
		}

		delay := b.NextBackOff()
		logrus.WithFields(logrus.Fields{
			"function": "Execute",
			"attempt":  n,
			"delay":    delay,
		}).Info("Backing off before retry")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: p.MaxAttempts, Last: lastErr}
}

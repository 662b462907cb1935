// Package backoff implements the exponential backoff schedule shared by the
// feed reconnect loop and the HTTP fetchers for scene and icon documents.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrRetriesExhausted is returned (wrapped) once a Policy runs out of attempts.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Permanent wraps err so Retry and RetryResult return it immediately
// instead of trying again. Use it for failures a retry cannot fix, such as
// an HTTP 404.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Policy configures an exponential backoff schedule.
//
// The delay before retry attempt n (1-based) is
//
//	min(Base * Multiplier^(n-1), Max)
//
// and no attempt beyond MaxAttempts is ever scheduled.
type Policy struct {
	// Base is the delay before the first retry (default: 1 second)
	Base time.Duration

	// Max caps any single delay (default: 30 seconds)
	Max time.Duration

	// Multiplier is the growth factor between attempts (default: 2.0)
	Multiplier float64

	// MaxAttempts is the number of retries allowed after the initial try (default: 5)
	MaxAttempts int
}

// DefaultPolicy returns the reconnect schedule used by the live feed:
// 1s, 2s, 4s, 8s, 16s and then give up.
func DefaultPolicy() Policy {
	return Policy{
		Base:        time.Second,
		Max:         30 * time.Second,
		Multiplier:  2.0,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before retry attempt n (1-based).
// The boolean is false when attempt n must not be scheduled at all.
func (p Policy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > p.MaxAttempts {
		return 0, false
	}

	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}

	d := float64(p.Base) * math.Pow(mult, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		return p.Max, true
	}
	return time.Duration(d), true
}

// Schedule lists every delay the policy will ever produce, in order.
func (p Policy) Schedule() []time.Duration {
	out := make([]time.Duration, 0, p.MaxAttempts)
	for n := 1; ; n++ {
		d, ok := p.Delay(n)
		if !ok {
			return out
		}
		out = append(out, d)
	}
}

// Retry runs fn, retrying failures according to the policy.
// It makes at most 1+MaxAttempts calls and stops early when ctx is done.
//
// Example usage:
//
//	err := backoff.Retry(ctx, backoff.DefaultPolicy(), func() error {
//	    return fetchSomething()
//	})
func Retry(ctx context.Context, p Policy, fn func() error) error {
	_, err := RetryResult(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryResult is Retry for functions that also produce a value.
// On failure the zero value of T is returned.
func RetryResult[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay, ok := p.Delay(attempt)
			if !ok {
				break
			}

			// Check context before sleeping
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-t.C:
			}
		} else if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.MaxAttempts, lastErr)
}

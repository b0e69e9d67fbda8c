// Package retry provides the bounded settle-and-retry loop used when a
// remote action needs a short window to take effect (the wireless adb
// handover being the main example).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError wraps an error to signal that retrying will not help.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.  The loop returns the inner
// error immediately without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ErrBudgetExhausted is wrapped into the error returned when the
// attempt count or the overall timeout runs out.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// ── Policy ───────────────────────────────────────────────────────────

// Policy is a bounded retry loop: wait Settle, try, and on failure wait
// a growing delay before trying again, until the operation succeeds,
// MaxAttempts is reached or Timeout elapses.
type Policy struct {
	// Settle is the wait before the first attempt (0 = try at once).
	Settle time.Duration
	// Delay is the wait after the first failure (default 500ms).
	Delay time.Duration
	// MaxDelay caps the growing delay (default 5s).
	MaxDelay time.Duration
	// Multiplier grows the delay each attempt (default 1.5).
	Multiplier float64
	// MaxAttempts bounds the number of tries (0 = bounded by Timeout only).
	MaxAttempts int
	// Timeout bounds the whole loop, settle included (0 = bounded by
	// MaxAttempts and ctx only).
	Timeout time.Duration
	// Jitter adds ±25% randomisation to every delay.
	Jitter bool
	// OnRetry, if set, is called after each failed attempt that will be
	// retried.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do runs fn until it succeeds or the budget is exhausted.  It returns
// the number of attempts made and, on failure, the last error wrapped
// with [ErrBudgetExhausted] (or the unwrapped permanent error).
//
// fn receives a context bounded by the policy timeout and the 1-based
// attempt number.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	if err := Sleep(ctx, p.Settle); err != nil {
		return 0, fmt.Errorf("%w before first attempt: %w", ErrBudgetExhausted, err)
	}

	delay := p.Delay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1.5
	}

	var last error
	for attempt := 1; ; attempt++ {
		last = fn(ctx, attempt)
		if last == nil {
			return attempt, nil
		}
		if IsPermanent(last) {
			return attempt, errors.Unwrap(last)
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrBudgetExhausted, attempt, last)
		}

		wait := delay
		if p.Jitter {
			wait = addJitter(delay)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, last, wait)
		}
		if err := Sleep(ctx, wait); err != nil {
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrBudgetExhausted, attempt, last)
		}

		delay = time.Duration(float64(delay) * multiplier)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.  It is
// the bounded wait used for pipeline settle points.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// addJitter adds ±25% randomisation to a duration.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}

// Package converge waits, with bounded retries, for an externally observable
// side effect to appear (a page becoming reachable, a hosting build matching
// a revision). Exhausting the attempt budget is not an error: the check is
// best-effort and the caller decides what an unconfirmed deployment means.
package converge

import (
	"context"
	"time"
)

// Predicate reports whether the awaited condition currently holds. An error
// counts as "not yet"; transient probe failures must not abort the wait.
type Predicate func(ctx context.Context) (bool, error)

// Result reports the outcome of one Await call.
type Result struct {
	Reached  bool
	Attempts int
}

// Waiter polls a predicate at a fixed cadence. Sleep is injectable so tests
// run with zero delay.
type Waiter struct {
	Interval    time.Duration
	MaxAttempts int
	Sleep       func(ctx context.Context, d time.Duration) error
}

// NewWaiter creates a Waiter with the default context-aware sleep.
func NewWaiter(interval time.Duration, maxAttempts int) *Waiter {
	return &Waiter{
		Interval:    interval,
		MaxAttempts: maxAttempts,
		Sleep:       sleepContext,
	}
}

// Await evaluates pred up to MaxAttempts times, sleeping Interval between
// evaluations. It stops early when the predicate holds or the context is
// cancelled. Total wall clock is bounded by Interval * MaxAttempts.
func (w *Waiter) Await(ctx context.Context, pred Predicate) Result {
	sleep := w.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; attempt <= w.MaxAttempts; attempt++ {
		ok, err := pred(ctx)
		if err == nil && ok {
			return Result{Reached: true, Attempts: attempt}
		}
		if ctx.Err() != nil {
			return Result{Reached: false, Attempts: attempt}
		}
		if attempt < w.MaxAttempts {
			if err := sleep(ctx, w.Interval); err != nil {
				return Result{Reached: false, Attempts: attempt}
			}
		}
	}

	return Result{Reached: false, Attempts: w.MaxAttempts}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

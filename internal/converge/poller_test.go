package converge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func instantWaiter(maxAttempts int) *Waiter {
	return &Waiter{
		Interval:    0,
		MaxAttempts: maxAttempts,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestAwait_NeverTrueExhaustsExactly(t *testing.T) {
	evaluations := 0
	w := instantWaiter(3)

	result := w.Await(context.Background(), func(ctx context.Context) (bool, error) {
		evaluations++
		return false, nil
	})

	assert.False(t, result.Reached)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, evaluations)
}

func TestAwait_ImmediateSuccess(t *testing.T) {
	w := instantWaiter(24)

	result := w.Await(context.Background(), func(ctx context.Context) (bool, error) {
		return true, nil
	})

	assert.True(t, result.Reached)
	assert.Equal(t, 1, result.Attempts)
}

func TestAwait_SucceedsMidway(t *testing.T) {
	calls := 0
	w := instantWaiter(10)

	result := w.Await(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return calls == 4, nil
	})

	assert.True(t, result.Reached)
	assert.Equal(t, 4, result.Attempts)
}

func TestAwait_PredicateErrorCountsAsNotYet(t *testing.T) {
	calls := 0
	w := instantWaiter(5)

	result := w.Await(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, errors.New("connection refused")
		}
		return true, nil
	})

	assert.True(t, result.Reached)
	assert.Equal(t, 3, result.Attempts)
}

func TestAwait_ContextCancellationStopsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	w := instantWaiter(100)

	result := w.Await(ctx, func(ctx context.Context) (bool, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return false, nil
	})

	assert.False(t, result.Reached)
	assert.Equal(t, 2, calls)
}

func TestAwait_SleepsBetweenAttemptsOnly(t *testing.T) {
	sleeps := 0
	w := &Waiter{
		Interval:    5 * time.Second,
		MaxAttempts: 3,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps++
			assert.Equal(t, 5*time.Second, d)
			return nil
		},
	}

	result := w.Await(context.Background(), func(ctx context.Context) (bool, error) {
		return false, nil
	})

	assert.False(t, result.Reached)
	// No sleep after the final attempt.
	assert.Equal(t, 2, sleeps)
}

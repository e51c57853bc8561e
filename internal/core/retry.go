package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptsExhausted is wrapped by Retry.Do when every attempt failed.
var ErrAttemptsExhausted = errors.New("attempts exhausted")

// Retry runs an operation a bounded number of times with a fixed delay between attempts.
type Retry struct {
	Attempts int
	Delay    time.Duration
	// Sleep waits between attempts. Nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do calls fn until it succeeds or the attempts are used up.
// fn receives the 1-based attempt number.
func (r Retry) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, err)
		}
		if err := r.sleep(ctx); err != nil {
			return err
		}
	}
}

func (r Retry) sleep(ctx context.Context) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, r.Delay)
	}
	return sleepContext(ctx, r.Delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package poll provides the bounded, fixed-interval polling loop shared by
// reference resolution and the asset upload pipeline.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned by Until when every attempt ran without the check
// reporting completion.
var ErrExhausted = errors.New("poll: attempts exhausted")

// Check is one polling attempt. It returns done=true with the final value once
// the awaited condition holds. A non-nil error ends polling immediately.
type Check[T any] func(ctx context.Context) (value T, done bool, err error)

// Until calls check at most maxAttempts times, sleeping interval between
// attempts (never after the last one). There is no backoff: the loop runs on
// the request path and its bound is maxAttempts * interval.
func Until[T any](ctx context.Context, maxAttempts int, interval time.Duration, check Check[T]) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; ; attempt++ {
		value, done, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return value, nil
		}
		if attempt >= maxAttempts {
			return zero, ErrExhausted
		}
		if err := sleep(ctx, interval); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
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

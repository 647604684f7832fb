package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilReturnsFirstCompletedValue(t *testing.T) {
	calls := 0
	got, err := Until(context.Background(), 5, time.Millisecond, func(ctx context.Context) (string, bool, error) {
		calls++
		if calls == 3 {
			return "ready", true, nil
		}
		return "", false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", got)
	assert.Equal(t, 3, calls)
}

func TestUntilStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Until(context.Background(), 4, time.Millisecond, func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, nil
	})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, calls)
}

func TestUntilCheckErrorIsTerminal(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Until(context.Background(), 10, time.Millisecond, func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntilTreatsNonPositiveAttemptsAsOne(t *testing.T) {
	calls := 0
	_, err := Until(context.Background(), 0, time.Millisecond, func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, nil
	})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestUntilDoesNotSleepAfterLastAttempt(t *testing.T) {
	start := time.Now()
	_, err := Until(context.Background(), 1, time.Second, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestUntilHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Until(ctx, 100, 50*time.Millisecond, func(ctx context.Context) (int, bool, error) {
		calls++
		cancel()
		return 0, false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("Succeeds first attempt", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(context.Context) error {
			calls++
			return nil
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("Retries until success", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Exhausts attempts", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("still failing")
		err := policy.Do(context.Background(), func(context.Context) error {
			calls++
			return wantErr
		}, nil)
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, 3, calls)
	})

	t.Run("Stops on non-retryable error", func(t *testing.T) {
		permanent := errors.New("permanent")
		calls := 0
		err := policy.Do(context.Background(), func(context.Context) error {
			calls++
			return permanent
		}, func(err error) bool { return !errors.Is(err, permanent) })
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("Respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := policy.Do(ctx, func(context.Context) error {
			return errors.New("transient")
		}, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDelayBounds(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond}
	for attempt := 1; attempt < 5; attempt++ {
		d := policy.delay(attempt)
		assert.GreaterOrEqual(t, d, 5*time.Millisecond)
		assert.LessOrEqual(t, d, 40*time.Millisecond)
	}
}

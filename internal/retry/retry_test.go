package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/retry"
)

func fast(attempts int) retry.Policy {
	return retry.Policy{Attempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), fast(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("503: %w", ports.ErrTransient)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	var notified int
	p := fast(2)
	p.Notify = func(error, time.Duration) { notified++ }

	err := retry.Do(context.Background(), p, func(context.Context) error {
		calls++
		return fmt.Errorf("timeout: %w", ports.ErrTransient)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTransient)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, notified)
}

func TestDo_PermanentErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), fast(5), func(context.Context) error {
		calls++
		return fmt.Errorf("401: %w", ports.ErrUnauthorized)
	})
	assert.ErrorIs(t, err, ports.ErrUnauthorized)
	assert.Equal(t, 1, calls)
}

func TestDoValue_ReturnsValue(t *testing.T) {
	t.Parallel()

	v, err := retry.DoValue(context.Background(), fast(1), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDo_CustomClassifier(t *testing.T) {
	t.Parallel()

	flaky := errors.New("flaky")
	p := fast(3)
	p.Retryable = func(err error) bool { return errors.Is(err, flaky) }

	calls := 0
	_ = retry.Do(context.Background(), p, func(context.Context) error {
		calls++
		return flaky
	})
	assert.Equal(t, 3, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, retry.Policy{Attempts: 5, InitialInterval: time.Hour}, func(context.Context) error {
		return ports.ErrTransient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swayfi/dca-engine/internal/logger"
)

func init() {
	logger.InitLogger("local")
}

func testPolicy(sleeps *[]time.Duration) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		sleep: func(ctx context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return nil
		},
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var sleeps []time.Duration

	result, attempts, err := Do(context.Background(), "test", testPolicy(&sleeps), func(ctx context.Context) (string, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeps)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	var sleeps []time.Duration
	calls := 0

	result, attempts, err := Do(context.Background(), "test", testPolicy(&sleeps), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
	// Sleeps happen only between attempts, never after the final one.
	assert.Len(t, sleeps, 2)
}

func TestDoStopsImmediatelyOnNonRetryable(t *testing.T) {
	var sleeps []time.Duration
	calls := 0

	_, attempts, err := Do(context.Background(), "test", testPolicy(&sleeps), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("execution reverted: transfer amount exceeds balance")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeps)

	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindRevert, ce.Kind)
}

func TestDoExhaustsAttempts(t *testing.T) {
	var sleeps []time.Duration
	calls := 0

	_, attempts, err := Do(context.Background(), "test", testPolicy(&sleeps), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("request timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Len(t, sleeps, 2)

	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindTimeout, ce.Kind)
	assert.True(t, ce.Retryable)
}

func TestDoBackoffDelaysGrowAndStayBounded(t *testing.T) {
	var sleeps []time.Duration
	p := testPolicy(&sleeps)
	p.MaxAttempts = 5
	p.BaseDelay = 20 * time.Millisecond
	p.MaxDelay = 50 * time.Millisecond

	_, _, err := Do(context.Background(), "test", p, func(ctx context.Context) (int, error) {
		return 0, errors.New("service unavailable")
	})

	require.Error(t, err)
	require.Len(t, sleeps, 4)
	for _, d := range sleeps {
		// +/-20% jitter around min(base*2^(n-1), maxDelay)
		assert.GreaterOrEqual(t, d, 16*time.Millisecond)
		assert.LessOrEqual(t, d, 60*time.Millisecond)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, attempts, err := Do(ctx, "test", DefaultPolicy(), func(ctx context.Context) (int, error) {
		t.Fatal("operation must not run with a cancelled context")
		return 0, nil
	})

	require.Error(t, err)
	assert.Equal(t, 0, attempts)
}

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/swayfi/dca-engine/internal/logger"
)

// Policy controls retry behavior for a fallible operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// sleep is swapped out in tests; nil means a context-aware time.Sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy provides the retry defaults used across the pipeline:
// three attempts, 1s base delay doubling up to 30s, with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// newBackOff builds the delay schedule for one Do invocation:
// delay = min(base * 2^(attempt-1), maxDelay) with +/-20% jitter.
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p Policy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
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

// Do runs op until it succeeds, exhausts the attempt budget, or fails with
// a non-retryable classification. It returns the result, the number of
// attempts used, and the final classified error (nil on success). Sleeping
// happens only between attempts, never after the last one.
//
// This is the single retry primitive wrapping the network-facing steps of
// the pipeline: signal fetch, the quote-to-settlement scope and both fee
// collection steps go through it.
func Do[T any](ctx context.Context, op string, p Policy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	schedule := p.newBackOff()

	var lastErr *ClassifiedError
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, Classify(err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}

		lastErr = Classify(err)
		if !lastErr.Retryable {
			logger.Debug("operation failed with non-retryable error",
				zap.String("operation", op),
				zap.String("kind", string(lastErr.Kind)),
				zap.Int("attempt", attempt))
			return zero, attempt, lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := schedule.NextBackOff()
		logger.Debug("operation failed, retrying",
			zap.String("operation", op),
			zap.String("kind", string(lastErr.Kind)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		if err := p.doSleep(ctx, delay); err != nil {
			return zero, attempt, Classify(err)
		}
	}

	return zero, p.MaxAttempts, lastErr
}

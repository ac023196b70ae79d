package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retryCall runs call with exponential backoff. Only transient errors are
// retried; the unit moves to Retrying between attempts and back to stage
// before the next one. Exhaustion returns the last error.
func retryCall[T any](
	ctx context.Context, runner *Runner, unit *Unit, stage State, call func(context.Context) (T, error),
) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = runner.cfg.InitialInterval
	policy.MaxInterval = runner.cfg.MaxInterval

	var (
		zero     T
		lastErr  error
		attempts int
	)

	operation := func() (T, error) {
		if unit.State == StateRetrying {
			err := unit.transition(stage, "retry")
			if err != nil {
				return zero, backoff.Permanent(err)
			}
		}

		attempts++
		unit.Attempts++

		value, err := callAbandonable(ctx, runner.cfg.CallTimeout, call)
		if err == nil {
			return value, nil
		}

		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) {
			return zero, backoff.Permanent(err)
		}

		return zero, err
	}

	notify := func(err error, wait time.Duration) {
		runner.metrics.RecordRetry(ctx, stage)
		runner.logger.WarnContext(ctx, "transient external failure",
			"unit", unit.ID, "stage", stage, "attempt", attempts, "wait", wait, "error", err)

		_ = unit.transition(StateRetrying, fmt.Sprintf("%v; next attempt in %s", err, wait))
	}

	value, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(runner.cfg.MaxAttempts),
		backoff.WithMaxElapsedTime(runner.cfg.MaxElapsed),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return value, nil
	}

	if ctx.Err() != nil {
		return zero, context.Cause(ctx)
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	if lastErr != nil && IsTransient(lastErr) {
		return zero, fmt.Errorf("%s failed after %d attempts: %w", stage, attempts, lastErr)
	}

	return zero, err
}

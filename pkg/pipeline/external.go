package pipeline

import (
	"context"
	"time"

	"github.com/Sumatoshi-tech/designmap/pkg/engine"
)

// Generation is the output of the external code-generation step.
type Generation struct {
	Code  string `json:"code"`
	Model string `json:"model,omitempty"`
}

// Verdict is the output of the external visual-validation step.
type Verdict struct {
	Passed    bool    `json:"passed"`
	DiffRatio float64 `json:"diffRatio"`
	Details   string  `json:"details,omitempty"`
}

// Generator produces code for one analyzed component. Implementations mark
// retryable failures with Transient.
type Generator interface {
	Generate(ctx context.Context, record engine.Record) (Generation, error)
}

// Validator checks generated code against the design. Implementations mark
// retryable failures with Transient.
type Validator interface {
	Validate(ctx context.Context, record engine.Record, generation Generation) (Verdict, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, record engine.Record) (Generation, error)

// Generate implements Generator.
func (fn GeneratorFunc) Generate(ctx context.Context, record engine.Record) (Generation, error) {
	return fn(ctx, record)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, record engine.Record, generation Generation) (Verdict, error)

// Validate implements Validator.
func (fn ValidatorFunc) Validate(ctx context.Context, record engine.Record, generation Generation) (Verdict, error) {
	return fn(ctx, record, generation)
}

type callResult[T any] struct {
	value T
	err   error
}

// callAbandonable runs call in its own goroutine and stops waiting as soon as
// ctx is done or the per-call timeout elapses. An abandoned call keeps
// running until it notices its context; its result is discarded.
func callAbandonable[T any](
	ctx context.Context, timeout time.Duration, call func(context.Context) (T, error),
) (T, error) {
	var zero T

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	done := make(chan callResult[T], 1)

	go func() {
		defer cancel()

		value, err := call(callCtx)
		done <- callResult[T]{value: value, err: err}
	}()

	select {
	case result := <-done:
		return result.value, result.err
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	case <-callCtx.Done():
		// The call goroutine cancels callCtx itself after delivering its result.
		select {
		case result := <-done:
			return result.value, result.err
		default:
		}

		if ctx.Err() != nil {
			return zero, context.Cause(ctx)
		}

		return zero, Transient(callCtx.Err())
	}
}

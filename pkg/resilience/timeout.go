// SPDX-License-Identifier: Apache-2.0
// Package resilience bounds blocking work with deadlines and isolates failing
// data sources behind a circuit breaker. Nothing here retries automatically;
// callers decide whether to try again.
package resilience

import (
	"context"
	"time"

	"github.com/jllopis/allot/pkg/errors"
)

// TimeoutConfig controls timeout behavior.
type TimeoutConfig struct {
	// Duration is the maximum time allowed for the operation. Zero disables
	// the deadline.
	Duration time.Duration

	// Code is the error code reported when the deadline passes.
	// Defaults to errors.CodeSolverTimeout.
	Code errors.ErrorCode

	// Operation names the bounded work in the error context.
	Operation string
}

// WithTimeout runs fn with a derived context that expires after
// config.Duration. fn must honour the context it is given; if it has not
// returned once the deadline passes, WithTimeout returns a recoverable error
// with config.Code and the zero T, and fn's eventual result is discarded.
// Cancellation of the parent ctx is reported as the parent's error.
func WithTimeout[T any](ctx context.Context, config TimeoutConfig, fn func(context.Context) (T, error)) (T, error) {
	if config.Duration <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(tctx)
		done <- result{value, err}
	}()

	var zero T
	select {
	case res := <-done:
		return res.value, res.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		code := config.Code
		if code == "" {
			code = errors.CodeSolverTimeout
		}
		err := errors.New(code, "operation exceeded timeout", tctx.Err()).
			WithContext("timeout", config.Duration.String()).
			WithRecoverable(true)
		if config.Operation != "" {
			err = err.WithContext("operation", config.Operation)
		}
		return zero, err
	}
}

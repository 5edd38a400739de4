package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout races op against a timer. When the timer wins it returns a Timeout kind
// error, which the default retry condition treats as transient. op keeps running in the
// background until it observes the cancelled context.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return op(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := op(ctx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, Wrap(ctx.Err(), KindTimeout, fmt.Sprintf("operation timed out after %s", d))
		}
		return zero, ctx.Err()
	}
}

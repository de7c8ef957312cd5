package backoff

import (
	"context"
	"errors"
)

// ErrAttemptsExhausted is returned when every retry attempt has failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Retry runs fn up to maxAttempts times, sleeping between attempts per the
// policy. fn receives the 1-indexed attempt number. The last error is joined
// with ErrAttemptsExhausted when all attempts fail; context cancellation
// aborts between attempts and during sleeps.
func Retry[T any](ctx context.Context, p Policy, maxAttempts int, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			if err := SleepBackoff(ctx, p, attempt); err != nil {
				return zero, err
			}
		}
	}
	return zero, errors.Join(ErrAttemptsExhausted, lastErr)
}

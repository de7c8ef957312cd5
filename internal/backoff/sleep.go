package backoff

import (
	"context"
	"time"
)

// Sleep waits for the given duration or until the context is cancelled,
// whichever comes first. Returns ctx.Err() on cancellation so abort latency
// is bounded by the current delay rather than the full backoff schedule.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// SleepBackoff computes the delay for attempt under the policy and sleeps.
func SleepBackoff(ctx context.Context, p Policy, attempt int) error {
	return Sleep(ctx, Delay(p, attempt))
}

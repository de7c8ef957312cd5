// Package backoff provides exponential backoff with jitter and cancellable
// sleeps for retrying transient failures.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes exponential backoff.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the exponential component of the delay.
	Max time.Duration
	// Factor multiplies the delay for each successive attempt.
	Factor float64
	// Jitter is the fraction of the clamped delay added as randomness (0..1).
	Jitter float64
}

// Default is the policy used for provider retries: 100ms initial, 30s cap,
// doubling, 10% jitter.
func Default() Policy {
	return Policy{
		Initial: 100 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// Delay computes the backoff for attempt (1-indexed):
// min(max, initial*factor^(attempt-1)) plus uniform jitter in
// [0, jitter*delay).
func Delay(p Policy, attempt int) time.Duration {
	return DelayWithRand(p, attempt, rand.Float64()) // #nosec G404 -- jitter needs no cryptographic randomness
}

// DelayWithRand computes the backoff using a caller-supplied random value in
// [0,1), which makes the result deterministic for tests.
func DelayWithRand(p Policy, attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	clamped := math.Min(float64(p.Max), base)
	total := clamped + clamped*p.Jitter*random
	return time.Duration(math.Round(total))
}

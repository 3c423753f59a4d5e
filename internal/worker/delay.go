package worker

import "time"

const (
	// jitterSpread is the half-width of the uniform jitter added to the base delay.
	jitterSpread = 2 * time.Second
	// floorJitter is the maximum jitter added on top of a clamped delay.
	floorJitter = time.Second

	rateLimitPenalty = 2 * time.Second
	pendingReward    = time.Second
	pendingStreak    = 3

	DefaultLoginCooldown = 3 * time.Second
)

// Rand is the subset of *rand.Rand used for jitter.
type Rand interface {
	Int63n(n int64) int64
}

// NextDelay computes the wait before a registration attempt:
// base ± 2s jitter + surplus, clamped up to min + [0, 1s) when below min.
// The result is never below min.
func NextDelay(base, surplus, min time.Duration, rng Rand) time.Duration {
	jitter := time.Duration(rng.Int63n(int64(2*jitterSpread)+1)) - jitterSpread
	delay := base + jitter + surplus
	if delay < min {
		delay = min + time.Duration(rng.Int63n(int64(floorJitter)))
	}
	return delay
}

package orchestrator

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the wait before retry attempt n (0-indexed): exponential
// from base, capped at max, with up to 50% jitter.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	return d + jitter
}

package clock

import (
	"math/rand"
	"time"
)

// Jitter returns a random duration in [0, max), the bounded random offset
// used when scheduling probes, announcements and deferred query/response
// bursts (RFC 6762 §8.1's "random delay of between 0 and 250 ms").
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// JitterFraction returns base scaled by a random factor within
// ±fraction (e.g. fraction=0.02 yields base*[0.98,1.02]), used for cache
// maintenance query timing (RFC 6762 §5.2's ±2% jitter around the 80/85/90/
// 95% TTL marks).
func JitterFraction(base time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return base
	}
	delta := (rand.Float64()*2 - 1) * fraction
	return base + time.Duration(float64(base)*delta)
}

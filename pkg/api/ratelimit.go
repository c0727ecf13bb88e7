package api

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket per key allowing max requests per period.
// A full bucket holds max tokens and one token comes back every period/max.
type rateLimiter struct {
	mu       sync.Mutex
	max      int
	interval time.Duration
	now      func() time.Time
	buckets  map[string]*tokenBucket
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

func newRateLimiter(max int, period time.Duration, now func() time.Time) *rateLimiter {
	interval := period / time.Duration(max)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return &rateLimiter{
		max:      max,
		interval: interval,
		now:      now,
		buckets:  make(map[string]*tokenBucket),
	}
}

// Allow takes a token for key if one is available
func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: rl.max, lastRefill: now}
		rl.buckets[key] = b
	}

	// Refill tokens based on time elapsed
	if elapsed := now.Sub(b.lastRefill); elapsed >= rl.interval {
		refills := int(elapsed / rl.interval)
		b.tokens = min(b.tokens+refills, rl.max)
		b.lastRefill = b.lastRefill.Add(time.Duration(refills) * rl.interval)
		if b.tokens == rl.max {
			b.lastRefill = now
		}
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

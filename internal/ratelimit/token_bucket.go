// Package ratelimit provides the token bucket used to cap inbound signaling
// message rates per connection.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket refills at an integer rate (tokens/sec) up to a fixed capacity,
// measured against the provided Clock.
//
// Token amounts are tracked in nanotokens (1 token = 1e9 nanotokens) so the
// refill math stays in integers: a rate of R tokens/sec adds exactly R
// nanotokens per elapsed nanosecond.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	capacity int64 // nanotokens
	rate     int64 // tokens/sec == nanotokens/ns

	available int64 // nanotokens
	last      time.Time
}

const nanotokens = int64(time.Second)

func NewTokenBucket(clock Clock, capacityTokens, fillRate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacityTokens < 0 {
		capacityTokens = 0
	}
	if fillRate < 0 {
		fillRate = 0
	}
	return &TokenBucket{
		clock:     clock,
		capacity:  capacityTokens * nanotokens,
		rate:      fillRate,
		available: capacityTokens * nanotokens,
		last:      clock.Now(),
	}
}

// Allow consumes tokens if available. tokens <= 0 always succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	cost := tokens * nanotokens
	if b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Time went backwards; re-anchor without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last).Nanoseconds()
	b.last = now

	if b.rate <= 0 || elapsed <= 0 || b.available >= b.capacity {
		return
	}

	// Clamp instead of multiplying when the elapsed window alone is enough
	// to fill the bucket, which also avoids overflow on long idle periods.
	need := b.capacity - b.available
	if elapsed >= need/b.rate {
		b.available = b.capacity
		return
	}
	b.available += elapsed * b.rate
}

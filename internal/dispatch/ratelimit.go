package dispatch

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastTime time.Time
	now      func() time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 10
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &RateLimiter{
		tokens:   float64(maxBurst),
		max:      float64(maxBurst),
		rate:     ratePerMinute / 60.0,
		lastTime: time.Now(),
		now:      time.Now,
	}
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
	if rl.tokens > rl.max {
		rl.tokens = rl.max
	}
	rl.lastTime = now
}

// Allow takes a token if one is available and never blocks.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens >= 1.0 {
			rl.tokens -= 1.0
			rl.mu.Unlock()
			return nil
		}
		waitSec := (1.0 - rl.tokens) / rl.rate
		rl.mu.Unlock()

		timer := time.NewTimer(time.Duration(waitSec * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// full reports whether the bucket has refilled completely.
func (rl *RateLimiter) full() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens >= rl.max
}

// KeyedLimiter keeps one bucket per sender. A ratePerMinute of zero
// disables limiting.
type KeyedLimiter struct {
	mu            sync.Mutex
	buckets       map[int64]*RateLimiter
	burst         int
	ratePerMinute float64
}

func NewKeyedLimiter(burst int, ratePerMinute float64) *KeyedLimiter {
	return &KeyedLimiter{
		buckets:       make(map[int64]*RateLimiter),
		burst:         burst,
		ratePerMinute: ratePerMinute,
	}
}

// Allow reports whether key may proceed now.
func (k *KeyedLimiter) Allow(key int64) bool {
	if k == nil || k.ratePerMinute <= 0 {
		return true
	}
	k.mu.Lock()
	rl, ok := k.buckets[key]
	if !ok {
		rl = NewRateLimiter(k.burst, k.ratePerMinute)
		k.buckets[key] = rl
	}
	k.mu.Unlock()
	return rl.Allow()
}

// Prune drops buckets that have refilled completely and returns how many
// were removed. Such buckets behave the same as a new one.
func (k *KeyedLimiter) Prune() int {
	if k == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	removed := 0
	for key, rl := range k.buckets {
		if rl.full() {
			delete(k.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked senders.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

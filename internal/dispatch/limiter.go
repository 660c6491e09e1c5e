package dispatch

import (
	"sync"
	"time"
)

// ChannelLimiter enforces a per-channel send budget using a token bucket
// per channel key.
type ChannelLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // max tokens
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewChannelLimiter creates a limiter allowing rate sends/sec with the given
// burst size per channel.
func NewChannelLimiter(rate float64, burst int) *ChannelLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = int(rate)
	}
	return &ChannelLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
}

// Allow reports whether a send on the channel is within budget, consuming a
// token when it is.
func (cl *ChannelLimiter) Allow(channel string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	b, ok := cl.buckets[channel]
	if !ok {
		b = &bucket{tokens: float64(cl.burst), lastTime: now}
		cl.buckets[channel] = b
	}

	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * cl.rate
	if b.tokens > float64(cl.burst) {
		b.tokens = float64(cl.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Evict drops buckets idle longer than maxIdle.
func (cl *ChannelLimiter) Evict(maxIdle time.Duration) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for key, b := range cl.buckets {
		if b.lastTime.Before(cutoff) {
			delete(cl.buckets, key)
		}
	}
}

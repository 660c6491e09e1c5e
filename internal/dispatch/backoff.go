package dispatch

import (
	"math/rand"
	"time"
)

const jitterFraction = 0.2

// Backoff computes retry delays that double per attempt with bounded jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Next returns the delay before the given retry attempt. retryCount is the
// number of failures so far, so the first retry uses the base delay.
func (b Backoff) Next(retryCount int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 30 * time.Second
	}
	max := b.Max
	if max <= 0 {
		max = time.Hour
	}

	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}

	jitter := time.Duration((rand.Float64()*2 - 1) * jitterFraction * float64(delay))
	delay += jitter
	if delay > max {
		delay = max
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

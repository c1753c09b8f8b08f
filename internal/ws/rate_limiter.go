package ws

import (
	"sync"
	"time"
)

// rateLimiter admits at most burst frames at once and regains burst
// frames per interval, measured on clock.
type rateLimiter struct {
	clock  func() time.Time
	burst  float64
	perSec float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func newRateLimiter(burst int, interval time.Duration, clock func() time.Time) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &rateLimiter{
		clock:  clock,
		burst:  float64(burst),
		perSec: float64(burst) / interval.Seconds(),
		tokens: float64(burst),
		last:   clock(),
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(rl.clock())
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// refill credits the time elapsed since the last call. A clock going
// backwards credits nothing.
func (rl *rateLimiter) refill(now time.Time) {
	if !now.After(rl.last) {
		return
	}
	rl.tokens = min(rl.burst, rl.tokens+now.Sub(rl.last).Seconds()*rl.perSec)
	rl.last = now
}

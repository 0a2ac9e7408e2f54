package http

import (
	"sync"
	"time"
)

// rateLimiter allows limit inbound frames per minute; zero disables it.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	counter int
	period  time.Duration
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	return &rateLimiter{limit: limit, period: time.Minute}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	return r.counter <= r.limit
}

// startReset clears the counter every period until stop is closed. The ticker
// lives only inside the reset goroutine.
func (r *rateLimiter) startReset(stop <-chan struct{}) {
	if r == nil || r.limit <= 0 {
		return
	}
	go func() {
		reset := time.NewTicker(r.period)
		defer reset.Stop()
		for {
			select {
			case <-reset.C:
				r.mu.Lock()
				r.counter = 0
				r.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

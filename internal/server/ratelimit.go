package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultLimiterIdle is how long a caller's bucket is kept without
	// requests before it is evicted.
	DefaultLimiterIdle = 10 * time.Minute
	// DefaultMaxCallers caps the number of tracked buckets.
	DefaultMaxCallers = 10000
)

// RateLimiter enforces a per-caller token bucket via golang.org/x/time/rate.
// Buckets idle for longer than the idle window are evicted, and the table
// never holds more than maxCallers entries, so unauthenticated callers keyed
// by IP cannot grow it without bound.
type RateLimiter struct {
	mu         sync.Mutex
	callers    map[string]*callerLimiter
	perCaller  rate.Limit
	burst      int
	idle       time.Duration
	maxCallers int
	lastSweep  time.Time
	now        func() time.Time
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows each caller perSecond requests per second with the
// given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		callers:    make(map[string]*callerLimiter),
		perCaller:  rate.Limit(perSecond),
		burst:      burst,
		idle:       DefaultLimiterIdle,
		maxCallers: DefaultMaxCallers,
		now:        time.Now,
	}
}

// Allow reports whether a request from caller may proceed now.
func (rl *RateLimiter) Allow(caller string) bool {
	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.idle {
		rl.evictIdle(now)
		rl.lastSweep = now
	}
	c, ok := rl.callers[caller]
	if !ok {
		if len(rl.callers) >= rl.maxCallers {
			rl.evictIdle(now)
		}
		if len(rl.callers) >= rl.maxCallers {
			rl.evictOldest()
		}
		c = &callerLimiter{limiter: rate.NewLimiter(rl.perCaller, rl.burst)}
		rl.callers[caller] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked callers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.callers)
}

// evictIdle drops buckets unused for the idle window. Callers hold mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for k, c := range rl.callers {
		if now.Sub(c.lastSeen) >= rl.idle {
			delete(rl.callers, k)
		}
	}
}

// evictOldest drops the least recently seen bucket. Callers hold mu.
func (rl *RateLimiter) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, c := range rl.callers {
		if !found || c.lastSeen.Before(oldest) {
			oldestKey, oldest, found = k, c.lastSeen, true
		}
	}
	if found {
		delete(rl.callers, oldestKey)
	}
}

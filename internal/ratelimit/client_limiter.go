package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
)

// Scope of an inbound throttle
type Scope string

const (
	ScopeUser Scope = "user"
	ScopeIP   Scope = "ip"
)

// DefaultIdleTTL is how long an unused bucket is kept
const DefaultIdleTTL = 10 * time.Minute

// ClientLimiter throttles inbound API calls per user and per client IP
// with token buckets. Burst is a quarter of the per-minute rate.
type ClientLimiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	idleTTL time.Duration
	rates   map[Scope]int
	buckets map[Scope]map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a throttle; a non-positive rate disables that scope
func NewClientLimiter(userPerMinute, ipPerMinute int, clk clock.Clock) *ClientLimiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &ClientLimiter{
		clock:   clk,
		idleTTL: DefaultIdleTTL,
		rates: map[Scope]int{
			ScopeUser: userPerMinute,
			ScopeIP:   ipPerMinute,
		},
		buckets: map[Scope]map[string]*bucket{
			ScopeUser: {},
			ScopeIP:   {},
		},
	}
}

// Allow consumes one token for key in scope
func (c *ClientLimiter) Allow(scope Scope, key string) bool {
	perMinute := c.rates[scope]
	if perMinute <= 0 || key == "" {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	b, ok := c.buckets[scope][key]
	if !ok {
		burst := max(perMinute/4, 1)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)}
		c.buckets[scope][key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Evict drops buckets idle for longer than the idle TTL and returns how many were removed
func (c *ClientLimiter) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.clock.Now().Add(-c.idleTTL)
	removed := 0
	for _, keys := range c.buckets {
		for k, b := range keys {
			if b.lastSeen.Before(cutoff) {
				delete(keys, k)
				removed++
			}
		}
	}
	return removed
}

// Len reports the number of live buckets
func (c *ClientLimiter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets[ScopeUser]) + len(c.buckets[ScopeIP])
}

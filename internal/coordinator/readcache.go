package coordinator

import (
	"strings"
	"sync"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
)

// Read view sources
const (
	SourceCache = "CACHE"
	SourceStore = "STORE"
)

type cachedView struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

// readCache holds read views for a per-view TTL
type readCache struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]cachedView
}

func newReadCache(clk clock.Clock) *readCache {
	return &readCache{clock: clk, entries: make(map[string]cachedView)}
}

// get returns a live view and when it was stored
func (c *readCache) get(key string) (interface{}, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clock.Now().Sub(e.storedAt) >= e.ttl {
		return nil, time.Time{}, false
	}
	return e.value, e.storedAt, true
}

func (c *readCache) put(key string, value interface{}, ttl time.Duration) time.Time {
	now := c.clock.Now()
	c.mu.Lock()
	c.entries[key] = cachedView{value: value, storedAt: now, ttl: ttl}
	c.mu.Unlock()
	return now
}

// invalidate drops every key with the prefix
func (c *readCache) invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// sweep drops expired views
func (c *readCache) sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= e.ttl {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

func (c *readCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

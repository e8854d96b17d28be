package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/redis"
)

// IdempotencyRecord is a response cached under a client key
type IdempotencyRecord struct {
	Key       string          `json:"key"`
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
}

// IdempotencyStore keeps write responses for a bounded window
type IdempotencyStore interface {
	// Get returns the live record for key
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	// PutIfAbsent stores rec unless a live record exists; the winning record is returned
	PutIfAbsent(ctx context.Context, rec IdempotencyRecord, ttl time.Duration) (IdempotencyRecord, error)
	// Sweep evicts expired records and reports how many were dropped
	Sweep(ctx context.Context) (int, error)
}

// ============================================================
// Memory
// ============================================================

type memoryEntry struct {
	record    IdempotencyRecord
	expiresAt time.Time
}

// MemoryIdempotency is an in-process store with lazy and swept expiry
type MemoryIdempotency struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryIdempotency creates an empty store
func NewMemoryIdempotency(clk clock.Clock) *MemoryIdempotency {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryIdempotency{clock: clk, entries: make(map[string]memoryEntry)}
}

// Get returns the record unless it expired; expired records are evicted on read
func (m *MemoryIdempotency) Get(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return IdempotencyRecord{}, false, nil
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return IdempotencyRecord{}, false, nil
	}
	return e.record, true, nil
}

// PutIfAbsent stores rec for ttl unless a live record already holds the key
func (m *MemoryIdempotency) PutIfAbsent(_ context.Context, rec IdempotencyRecord, ttl time.Duration) (IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if e, ok := m.entries[rec.Key]; ok && now.Before(e.expiresAt) {
		return e.record, nil
	}
	m.entries[rec.Key] = memoryEntry{record: rec, expiresAt: now.Add(ttl)}
	return rec, nil
}

// Sweep drops expired records
func (m *MemoryIdempotency) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	dropped := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			dropped++
		}
	}
	return dropped, nil
}

// Len returns the number of stored records, expired or not
func (m *MemoryIdempotency) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ============================================================
// Redis
// ============================================================

// RedisIdempotency shares records between instances through SET NX EX
type RedisIdempotency struct {
	cache *redis.Cache
}

// NewRedisIdempotency creates a store on an enabled cache
func NewRedisIdempotency(cache *redis.Cache) *RedisIdempotency {
	return &RedisIdempotency{cache: cache}
}

// Get reads the record; Redis expires it
func (r *RedisIdempotency) Get(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	var rec IdempotencyRecord
	found, err := r.cache.Get(ctx, key, &rec)
	if err != nil {
		return IdempotencyRecord{}, false, fmt.Errorf("idempotency get %s: %w", key, err)
	}
	return rec, found, nil
}

// PutIfAbsent writes with SET NX; a lost race returns the other instance's record
func (r *RedisIdempotency) PutIfAbsent(ctx context.Context, rec IdempotencyRecord, ttl time.Duration) (IdempotencyRecord, error) {
	stored, err := r.cache.SetNX(ctx, rec.Key, rec, ttl)
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("idempotency put %s: %w", rec.Key, err)
	}
	if stored {
		return rec, nil
	}

	existing, found, err := r.Get(ctx, rec.Key)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if !found {
		// Expired between SET NX and GET
		return rec, nil
	}
	return existing, nil
}

// Sweep is a no-op; keys carry their own expiry
func (r *RedisIdempotency) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

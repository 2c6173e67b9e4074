package cache

import (
	"sync"
	"time"

	"trading-data-viewer/src/logger"
)

// -----------------------------------------------------------------------------
// Bounded Cache with Single-Flight
// -----------------------------------------------------------------------------

// entry stores a cached value with its last access time and optional expiry.
type entry struct {
	value    interface{}
	access   time.Time
	expireAt time.Time // zero means no expiry
}

func (e *entry) expired() bool {
	return !e.expireAt.IsZero() && time.Now().After(e.expireAt)
}

// call tracks one in-flight computation so concurrent requests for the same
// uncached key wait for a single result instead of duplicating work.
type call struct {
	done chan struct{}
	val  interface{}
	err  error
}

// -----------------------------------------------------------------------------

// Cache memoizes expensive, rarely-changing lookups. Capacity-bounded with
// least-recently-used eviction; TTL is optional (zero disables expiry).
type Cache struct {
	Logger *logger.Logger

	mu       sync.Mutex
	data     map[string]*entry
	inflight map[string]*call
	capacity int
	ttl      time.Duration
}

// -----------------------------------------------------------------------------

func New(capacity int, ttl time.Duration, log *logger.Logger) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cache{
		Logger:   log,
		data:     make(map[string]*entry),
		inflight: make(map[string]*call),
		capacity: capacity,
		ttl:      ttl,
	}
}

// -----------------------------------------------------------------------------

// GetOrCompute returns the cached value for key, computing it with fn on a
// miss. At most one computation is in flight per key; other callers block on
// its result. Errors are returned to every waiter and never cached.
func (c *Cache) GetOrCompute(key string, fn func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()

	if e, ok := c.data[key]; ok && !e.expired() {
		e.access = time.Now()
		c.mu.Unlock()
		return e.value, nil
	}

	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-cl.done
		return cl.val, cl.err
	}

	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.val, cl.err = fn()

	c.mu.Lock()
	delete(c.inflight, key)
	if cl.err == nil {
		c.store(key, cl.val)
	}
	c.mu.Unlock()

	close(cl.done)
	return cl.val, cl.err
}

// -----------------------------------------------------------------------------

// Invalidate drops a key so the next lookup recomputes it.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// -----------------------------------------------------------------------------

// store inserts under the capacity bound, evicting the least recently used
// entry on overflow. Caller holds c.mu.
func (c *Cache) store(key string, value interface{}) {
	if _, ok := c.data[key]; !ok && len(c.data) >= c.capacity {
		c.evictLRU()
	}

	e := &entry{value: value, access: time.Now()}
	if c.ttl > 0 {
		e.expireAt = time.Now().Add(c.ttl)
	}
	c.data[key] = e
}

// -----------------------------------------------------------------------------

func (c *Cache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.data {
		if oldestKey == "" || e.access.Before(oldest) {
			oldestKey = k
			oldest = e.access
		}
	}
	if oldestKey != "" {
		delete(c.data, oldestKey)
		c.Logger.Debug("Evicted cache entry '%s'", oldestKey)
	}
}

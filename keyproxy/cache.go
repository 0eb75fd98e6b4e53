package keyproxy

import (
	"sync"
	"time"
)

type ttlEntry[T any] struct {
	v       T
	expires time.Time
}

// TTLCache is a small goroutine-safe key/value cache with a fixed capacity
// and a per-entry time-to-live.
//
//   - Expiration: entries expire lazily on Get.
//   - Eviction: when full, the oldest inserted key is dropped first (FIFO).
//     Re-setting an existing key refreshes its value and TTL but keeps its
//     position in the queue.
//   - A non-positive ttl disables caching; Get always misses.
//
// The zero value is not ready for use; call NewTTLCache.
type TTLCache[T any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	size  int
	now   func() time.Time
	data  map[string]ttlEntry[T]
	order []string
}

// NewTTLCache builds a cache holding at most size entries for ttl each.
func NewTTLCache[T any](size int, ttl time.Duration) *TTLCache[T] {
	if size <= 0 {
		size = 1
	}
	return &TTLCache[T]{
		ttl:  ttl,
		size: size,
		now:  time.Now,
		data: make(map[string]ttlEntry[T]),
	}
}

// Get returns the value for k if present and not expired.
func (c *TTLCache[T]) Get(k string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[k]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expires) {
		c.removeLocked(k)
		return zero, false
	}
	return e.v, true
}

// Set stores v under k with an expiry of now + ttl.
func (c *TTLCache[T]) Set(k string, v T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[k]; !exists {
		if len(c.data) >= c.size && len(c.order) > 0 {
			c.removeLocked(c.order[0])
		}
		c.order = append(c.order, k)
	}
	c.data[k] = ttlEntry[T]{v: v, expires: c.now().Add(c.ttl)}
}

// Delete drops k from the cache.
func (c *TTLCache[T]) Delete(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(k)
}

// Len reports the number of stored entries, expired ones included.
func (c *TTLCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *TTLCache[T]) removeLocked(k string) {
	if _, ok := c.data[k]; !ok {
		return
	}
	delete(c.data, k)
	for i, o := range c.order {
		if o == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

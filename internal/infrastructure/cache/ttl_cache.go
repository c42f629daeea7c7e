package cache

import (
	"sync"
	"time"
)

// TTLCache provides thread-safe caching of a single value with TTL support.
// Used to throttle repeated probes against slow or rate-limited upstreams,
// such as the authorizer status service.
type TTLCache[T any] struct {
	mu        sync.RWMutex
	value     T
	set       bool
	expiresAt time.Time
}

// NewTTLCache creates a new thread-safe cache.
func NewTTLCache[T any]() *TTLCache[T] {
	return &TTLCache[T]{}
}

// Get returns the cached value if it's still valid.
func (c *TTLCache[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	if !c.set || time.Now().After(c.expiresAt) {
		return zero, false
	}
	return c.value, true
}

// Set stores a value with the specified TTL.
func (c *TTLCache[T]) Set(value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
	c.set = true
	c.expiresAt = time.Now().Add(ttl)
}

// Clear removes the cached value.
func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	c.value = zero
	c.set = false
	c.expiresAt = time.Time{}
}

// IsExpired reports whether the cache holds no live value.
func (c *TTLCache[T]) IsExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return !c.set || time.Now().After(c.expiresAt)
}

package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TTL is a thread-safe, size-bounded cache whose entries expire after a
// fixed duration. Expired entries are dropped lazily on read.
type TTL[K comparable, V any] struct {
	entries *lru.Cache[K, entry[V]]
	ttl     time.Duration
	now     func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Option configures a TTL cache.
type Option[K comparable, V any] func(*TTL[K, V])

// WithClock injects the time source used for expiry checks. Intended for
// tests; defaults to time.Now.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *TTL[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTTL creates a cache holding at most capacity entries, each valid for
// ttl after being set. Panics on non-positive capacity or ttl to fail fast
// on misconfiguration.
func NewTTL[K comparable, V any](capacity int, ttl time.Duration, opts ...Option[K, V]) *TTL[K, V] {
	if ttl <= 0 {
		panic("cache: ttl must be positive")
	}

	entries, err := lru.New[K, entry[V]](capacity)
	if err != nil {
		panic("cache: " + err.Error())
	}

	c := &TTL[K, V]{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key if present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous entry and restarting
// its TTL.
func (c *TTL[K, V]) Set(key K, value V) {
	c.entries.Add(key, entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Remove drops key from the cache if present.
func (c *TTL[K, V]) Remove(key K) {
	c.entries.Remove(key)
}

// Len returns the number of entries currently held, including entries that
// expired but have not been read since.
func (c *TTL[K, V]) Len() int {
	return c.entries.Len()
}

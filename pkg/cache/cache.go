// Package cache wraps ristretto behind a small TTL cache used for
// recommendation results. Entries are admission-sampled, so a Set is
// best effort and a Get after Set may miss under pressure.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a TTL'd in-process cache keyed by string.
type Cache struct {
	inner *ristretto.Cache[string, any]
}

// Opts configures cache sizing.
type Opts struct {
	// MaxEntries bounds the number of cached values.
	MaxEntries int64
}

// DefaultOpts returns sizing suitable for a single API instance.
func DefaultOpts() Opts {
	return Opts{MaxEntries: 10_000}
}

// New builds a cache. MaxEntries <= 0 falls back to DefaultOpts.
func New(opts Opts) (*Cache, error) {
	if opts.MaxEntries <= 0 {
		opts = DefaultOpts()
	}
	inner, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: opts.MaxEntries * 10,
		MaxCost:     opts.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	return c.inner.Get(key)
}

// Set stores value under key for at most ttl. A ttl <= 0 stores without
// expiry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl > 0 {
		c.inner.SetWithTTL(key, value, 1, ttl)
		return
	}
	c.inner.Set(key, value, 1)
}

// Wait blocks until buffered writes are applied. Tests use this to make
// Set visible before asserting on Get.
func (c *Cache) Wait() { c.inner.Wait() }

// Close releases the cache's background resources.
func (c *Cache) Close() { c.inner.Close() }

// Package cache provides the bounded, TTL-based result caches used by search
// and composition.
package cache

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/goccy/go-json"
)

// Cache is a bounded TTL cache keyed by string. Every entry has cost 1, so
// maxItems bounds the number of entries.
type Cache[V any] struct {
	store *ristretto.Cache[string, V]
	ttl   time.Duration
}

// New creates a cache holding at most maxItems entries for ttl each.
// A zero ttl disables expiry.
func New[V any](maxItems int, ttl time.Duration) (*Cache[V], error) {
	if maxItems < 1 {
		maxItems = 1
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters:        int64(maxItems) * 10,
		MaxCost:            int64(maxItems),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Cache[V]{store: store, ttl: ttl}, nil
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.store.Get(key)
}

// Set stores value under key. The write is visible to Get once Set returns,
// unless the admission policy rejected it.
func (c *Cache[V]) Set(key string, value V) {
	if c.ttl > 0 {
		c.store.SetWithTTL(key, value, 1, c.ttl)
	} else {
		c.store.Set(key, value, 1)
	}
	c.store.Wait()
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.store.Del(key)
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.store.Clear()
}

// Close stops the cache's background goroutines.
func (c *Cache[V]) Close() {
	c.store.Close()
}

// GenerateKey derives a stable cache key from prefix and the JSON encoding of
// params. Map keys are encoded in sorted order, so equal params give equal keys.
func GenerateKey(prefix string, params any) string {
	data, err := json.Marshal(params)
	if err != nil {
		data = fmt.Appendf(nil, "%v", params)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", prefix, sum[:16])
}

// TimeBucket truncates now to a multiple of d so keys rotate every d.
func TimeBucket(now time.Time, d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return now.Truncate(d).Unix()
}

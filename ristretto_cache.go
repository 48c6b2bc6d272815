package pdp

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoConfig sizes the admission-controlled cache. Zero values fall
// back to defaults suitable for a mid-size policy set.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func (c RistrettoConfig) withDefaults() RistrettoConfig {
	if c.NumCounters <= 0 {
		c.NumCounters = 1e6
	}
	if c.MaxCost <= 0 {
		c.MaxCost = 1 << 26
	}
	if c.BufferItems <= 0 {
		c.BufferItems = 64
	}
	return c
}

// RistrettoDecisionCache backs the DecisionCache interface with a
// cost-bounded ristretto cache. Unlike the map cache it may evict entries
// under memory pressure before their TTL lapses, which is acceptable: a
// miss only costs a re-evaluation.
type RistrettoDecisionCache struct {
	cache *ristretto.Cache
}

// NewRistrettoDecisionCache builds the cache; the only error path is an
// invalid configuration, which withDefaults rules out, but the signature
// keeps it surfaced.
func NewRistrettoDecisionCache(cfg RistrettoConfig) (*RistrettoDecisionCache, error) {
	cfg = cfg.withDefaults()
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoDecisionCache{cache: cache}, nil
}

func (c *RistrettoDecisionCache) Get(key string) (*Decision, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	d, ok := v.(*Decision)
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

func (c *RistrettoDecisionCache) Set(key string, d *Decision, ttl time.Duration) {
	if d == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c.cache.SetWithTTL(key, d.Clone(), 1, ttl)
	// Writes are buffered; flush so a Set is observable to the next Get.
	c.cache.Wait()
}

func (c *RistrettoDecisionCache) Clear() {
	c.cache.Clear()
}

func (c *RistrettoDecisionCache) Stats() CacheStats {
	m := c.cache.Metrics
	return CacheStats{
		Hits:   m.Hits(),
		Misses: m.Misses(),
	}
}

// Close releases the cache's background goroutines.
func (c *RistrettoDecisionCache) Close() {
	c.cache.Close()
}

package pdp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a cached decision may serve before the
// engine re-evaluates.
const DefaultCacheTTL = 300 * time.Second

// Fingerprint derives the cache key for a request: a sha256 hex digest over
// the subject, resource, action and the context hints in sorted key order,
// so semantically identical requests collide regardless of map iteration
// order.
func Fingerprint(subjectID, resourceID, action string, hints map[string]any) string {
	keys := make([]string, 0, len(hints))
	for k := range hints {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(subjectID)
	b.WriteByte('\x00')
	b.WriteString(resourceID)
	b.WriteByte('\x00')
	b.WriteString(action)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", hints[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// CacheStats is a point-in-time snapshot of cache behavior.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Valid   int    `json:"valid"`
	Expired int    `json:"expired"`
}

// DecisionCache stores evaluated decisions by fingerprint. Implementations
// must copy on both insert and lookup so cached entries stay immutable, and
// must be safe for concurrent use.
type DecisionCache interface {
	Get(key string) (*Decision, bool)
	Set(key string, d *Decision, ttl time.Duration)
	Clear()
	Stats() CacheStats
}

type cacheEntry struct {
	decision  *Decision
	expiresAt time.Time
}

// memoryDecisionCache is the default map-backed cache. Expired entries are
// dropped lazily on lookup and counted separately in Stats until then.
type memoryDecisionCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	hits    uint64
	misses  uint64
}

// NewMemoryDecisionCache returns the default in-process DecisionCache.
func NewMemoryDecisionCache() DecisionCache {
	return &memoryDecisionCache{entries: make(map[string]cacheEntry)}
}

func (c *memoryDecisionCache) Get(key string) (*Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.decision.Clone(), true
}

func (c *memoryDecisionCache) Set(key string, d *Decision, ttl time.Duration) {
	if d == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{decision: d.Clone(), expiresAt: time.Now().Add(ttl)}
}

func (c *memoryDecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *memoryDecisionCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := CacheStats{Hits: c.hits, Misses: c.misses}
	now := time.Now()
	for _, entry := range c.entries {
		if now.After(entry.expiresAt) {
			stats.Expired++
		} else {
			stats.Valid++
		}
	}
	return stats
}

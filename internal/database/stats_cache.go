package database

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultStatsCacheTTL is how long computed statistics are reused.
const DefaultStatsCacheTTL = 10 * time.Minute

// DefaultStatsCacheMaxSize bounds the number of cached wells.
const DefaultStatsCacheMaxSize = 1000

// 16 shards keep concurrent lookups for different wells off the same lock.
const cacheShardCount = 16

type statsCacheEntry struct {
	stats     *TableStats
	expiresAt time.Time
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]statsCacheEntry
}

// StatsCache is a sharded TTL cache of TableStats keyed by well id. Archives
// are immutable once written, so entries only go stale when a well is
// deleted; callers must Invalidate on delete.
type StatsCache struct {
	shards       [cacheShardCount]*cacheShard
	ttl          time.Duration
	maxSizeTotal int
	hits         atomic.Int64
	misses       atomic.Int64
	evictions    atomic.Int64
}

// NewStatsCache creates a cache. Non-positive arguments select the defaults.
func NewStatsCache(ttl time.Duration, maxSize int) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsCacheTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultStatsCacheMaxSize
	}

	c := &StatsCache{
		ttl:          ttl,
		maxSizeTotal: maxSize,
	}
	for i := 0; i < cacheShardCount; i++ {
		c.shards[i] = &cacheShard{
			entries: make(map[string]statsCacheEntry),
		}
	}
	return c
}

func (c *StatsCache) getShard(key string) *cacheShard {
	sum := sha256.Sum256([]byte(key))
	return c.shards[sum[0]%cacheShardCount]
}

// Get returns cached statistics for wellID if present and fresh.
func (c *StatsCache) Get(wellID string) (*TableStats, bool) {
	shard := c.getShard(wellID)

	shard.mu.RLock()
	entry, ok := shard.entries[wellID]
	shard.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return entry.stats, true
}

// Set stores statistics for wellID. When the shard is full and no expired
// entries can be evicted the value is not cached.
func (c *StatsCache) Set(wellID string, stats *TableStats) {
	shard := c.getShard(wellID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	maxPerShard := c.maxSizeTotal / cacheShardCount
	if maxPerShard < 1 {
		maxPerShard = 1
	}

	if _, exists := shard.entries[wellID]; !exists && len(shard.entries) >= maxPerShard {
		// bounded scan: evict at most 10 expired entries
		now := time.Now()
		evicted := 0
		for key, entry := range shard.entries {
			if now.After(entry.expiresAt) {
				delete(shard.entries, key)
				evicted++
				if evicted >= 10 {
					break
				}
			}
		}
		c.evictions.Add(int64(evicted))

		if len(shard.entries) >= maxPerShard {
			return
		}
	}

	shard.entries[wellID] = statsCacheEntry{
		stats:     stats,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate removes wellID from the cache.
func (c *StatsCache) Invalidate(wellID string) {
	shard := c.getShard(wellID)
	shard.mu.Lock()
	delete(shard.entries, wellID)
	shard.mu.Unlock()
}

// Cleanup removes expired entries and returns how many were removed.
func (c *StatsCache) Cleanup() int {
	now := time.Now()
	removed := 0

	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, entry := range shard.entries {
			if now.After(entry.expiresAt) {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Size returns the number of cached wells.
func (c *StatsCache) Size() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}

// Stats returns cache counters.
func (c *StatsCache) Stats() map[string]interface{} {
	hits := c.hits.Load()
	misses := c.misses.Load()
	hitRate := float64(0)
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"cache_size":       c.Size(),
		"cache_max_size":   c.maxSizeTotal,
		"cache_hits":       hits,
		"cache_misses":     misses,
		"hit_rate_percent": hitRate,
		"evictions":        c.evictions.Load(),
		"ttl_seconds":      c.ttl.Seconds(),
	}
}

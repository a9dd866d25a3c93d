package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/agentfs/agentfs/pkg/types"
)

// StatCache is a thread-safe LRU of file metadata keyed by path.
type StatCache struct {
	mu        sync.Mutex
	items     map[cacheKey]*cacheItem
	evictList *list.List

	config *Config
	now    func() time.Time

	stats types.CacheStats
}

// Config represents cache configuration
type Config struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// cacheKey distinguishes stat (follow) from lstat results for one path.
type cacheKey struct {
	path   string
	follow bool
}

// cacheItem represents an item in the cache
type cacheItem struct {
	key       cacheKey
	stats     types.Stats
	timestamp time.Time
	element   *list.Element
}

// NewStatCache creates a new metadata cache
func NewStatCache(config *Config) *StatCache {
	if config == nil {
		config = &Config{
			MaxEntries: 10000,
			TTL:        time.Second,
		}
	}

	return &StatCache{
		items:     make(map[cacheKey]*cacheItem),
		evictList: list.New(),
		config:    config,
		now:       time.Now,
		stats: types.CacheStats{
			Capacity: config.MaxEntries,
		},
	}
}

// Get returns the cached metadata for path.
func (c *StatCache) Get(path string, follow bool) (types.Stats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{path: path, follow: follow}
	item, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		c.updateHitRate()
		return types.Stats{}, false
	}

	if c.isExpired(item) {
		c.removeItem(item)
		c.stats.Misses++
		c.updateHitRate()
		return types.Stats{}, false
	}

	c.evictList.MoveToFront(item.element)
	c.stats.Hits++
	c.updateHitRate()
	return item.stats, true
}

// Put stores metadata for path.
func (c *StatCache) Put(path string, follow bool, stats types.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{path: path, follow: follow}
	if item, exists := c.items[key]; exists {
		item.stats = stats
		item.timestamp = c.now()
		c.evictList.MoveToFront(item.element)
		return
	}

	item := &cacheItem{
		key:       key,
		stats:     stats,
		timestamp: c.now(),
	}
	item.element = c.evictList.PushFront(item)
	c.items[key] = item

	c.evictIfNeeded()
}

// Clear clears all items from the cache
func (c *StatCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Evictions += uint64(len(c.items))
	c.items = make(map[cacheKey]*cacheItem)
	c.evictList.Init()
}

// Stats returns cache statistics
func (c *StatCache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Entries = len(c.items)
	return stats
}

// Helper methods

func (c *StatCache) isExpired(item *cacheItem) bool {
	if c.config.TTL == 0 {
		return false
	}
	return c.now().Sub(item.timestamp) > c.config.TTL
}

func (c *StatCache) removeItem(item *cacheItem) {
	c.evictList.Remove(item.element)
	delete(c.items, item.key)
	c.stats.Evictions++
}

func (c *StatCache) evictIfNeeded() {
	maxEntries := c.config.MaxEntries
	if maxEntries <= 0 {
		return
	}
	for len(c.items) > maxEntries && c.evictList.Len() > 0 {
		c.removeItem(c.evictList.Back().Value.(*cacheItem))
	}
}

func (c *StatCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

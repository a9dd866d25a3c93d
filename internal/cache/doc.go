/*
Package cache provides the metadata cache placed in front of a handle's
filesystem when bridge.stat_cache.enabled is set.

StatCache is an LRU of types.Stats keyed by (path, follow). Entries expire
after a TTL and the least recently used entry is evicted once MaxEntries is
exceeded.

FileSystem decorates any types.FileSystem:

	fs := cache.NewFileSystem(inner, &cache.Config{MaxEntries: 10000, TTL: time.Second})
	st, found, err := fs.Stat(ctx, "/docs/readme.md") // miss, then cached
	_ = fs.WriteFile(ctx, "/docs/readme.md", data)     // drops every cached entry
	stats := fs.CacheStats()

Any mutation clears the cache, so a path reached through a symlink never
reports the target's old metadata.
*/
package cache

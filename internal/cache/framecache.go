package cache

import "sort"

// entry is one tracked item in a FrameCache: an opaque key, its size in
// bytes, and a sequence number standing in for recency (higher = more
// recently touched).
type entry struct {
	key   int64
	size  int64
	touch int64
}

// FrameCache is a size-bounded, in-memory record of decoded byte spans
// keyed by their starting offset. It tracks each span's size and
// recency, not the bytes themselves. The compressed byte source records
// every frame it decodes here but does not consult the record before
// decoding, so re-reading a region decodes it again either way. Unlike
// a disk cache there is no file to remove: eviction just drops the
// record.
//
// Adapted from EDRmount's internal/cache.EnforceSizeLimit, which
// applied the same oldest-first eviction policy to files under a
// directory; here the same sort-by-recency-then-trim shape applies to
// an in-memory map instead of a filesystem walk.
type FrameCache struct {
	maxBytes int64
	total    int64
	clock    int64
	entries  map[int64]*entry
}

// NewFrameCache returns a cache that evicts entries once their
// combined size exceeds maxBytes.
func NewFrameCache(maxBytes int64) *FrameCache {
	return &FrameCache{maxBytes: maxBytes, entries: make(map[int64]*entry)}
}

// Touch records that size bytes are cached under key, most-recently
// used, and evicts the least-recently-touched entries until the cache
// fits within its budget.
func (c *FrameCache) Touch(key, size int64) {
	c.clock++
	if e, ok := c.entries[key]; ok {
		c.total += size - e.size
		e.size = size
		e.touch = c.clock
	} else {
		c.entries[key] = &entry{key: key, size: size, touch: c.clock}
		c.total += size
	}
	c.evict()
}

// Has reports whether key is currently cached, bumping its recency if so.
func (c *FrameCache) Has(key int64) bool {
	e, ok := c.entries[key]
	if ok {
		c.clock++
		e.touch = c.clock
	}
	return ok
}

// Forget drops key from the cache, if present.
func (c *FrameCache) Forget(key int64) {
	if e, ok := c.entries[key]; ok {
		c.total -= e.size
		delete(c.entries, key)
	}
}

func (c *FrameCache) evict() {
	if c.maxBytes <= 0 || c.total <= c.maxBytes {
		return
	}
	ordered := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].touch < ordered[j].touch })
	for _, e := range ordered {
		if c.total <= c.maxBytes {
			break
		}
		c.total -= e.size
		delete(c.entries, e.key)
	}
}

// Len returns the number of entries currently cached.
func (c *FrameCache) Len() int { return len(c.entries) }

// TotalBytes returns the combined size of all cached entries.
func (c *FrameCache) TotalBytes() int64 { return c.total }

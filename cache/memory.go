// Package cache provides ContentCache implementations for genroute.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/draftmill/genroute"
)

// MemoryCache is an in-memory ContentCache. Entries expire by TTL and can
// be evicted by source ref. Not shared between processes; async workers on
// separate instances should use the Redis cache instead.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	byRef   map[string]map[string]struct{} // source ref -> fingerprints
	now     func() time.Time
}

type memoryEntry struct {
	Content   string
	ExpiresAt time.Time
	Refs      []string
}

var _ genroute.ContentCache = (*MemoryCache)(nil)

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock overrides the cache's clock. Tests use it to expire entries
// without sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates a new in-memory content cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		byRef:   make(map[string]map[string]struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached content for fingerprint, or ErrCacheMiss when the
// entry is absent or expired. Expired entries are dropped on read.
func (c *MemoryCache) Get(_ context.Context, fingerprint string) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return "", genroute.ErrCacheMiss
	}

	if !c.now().Before(entry.ExpiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a Put may have replaced the entry.
		if cur, ok := c.entries[fingerprint]; ok && !c.now().Before(cur.ExpiresAt) {
			c.removeLocked(fingerprint, cur)
		}
		c.mu.Unlock()
		return "", genroute.ErrCacheMiss
	}
	return entry.Content, nil
}

// Put stores content under fingerprint for ttl, replacing any previous
// entry and its source-ref associations.
func (c *MemoryCache) Put(_ context.Context, fingerprint, content string, ttl time.Duration, sourceRefs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[fingerprint]; ok {
		c.unindexLocked(fingerprint, old)
	}

	refs := make([]string, len(sourceRefs))
	copy(refs, sourceRefs)
	c.entries[fingerprint] = &memoryEntry{
		Content:   content,
		ExpiresAt: c.now().Add(ttl),
		Refs:      refs,
	}
	for _, ref := range refs {
		set, ok := c.byRef[ref]
		if !ok {
			set = make(map[string]struct{})
			c.byRef[ref] = set
		}
		set[fingerprint] = struct{}{}
	}
	return nil
}

// Invalidate evicts every entry associated with sourceRef and returns the
// number evicted. An unknown ref evicts nothing.
func (c *MemoryCache) Invalidate(_ context.Context, sourceRef string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.byRef[sourceRef]
	if !ok {
		return 0, nil
	}

	evicted := 0
	for fingerprint := range set {
		if entry, ok := c.entries[fingerprint]; ok {
			c.removeLocked(fingerprint, entry)
			evicted++
		}
	}
	delete(c.byRef, sourceRef)
	return evicted, nil
}

// PurgeExpired drops every expired entry and returns the number removed.
// Expired entries also disappear lazily on Get; this is for callers that
// want to bound memory between reads.
func (c *MemoryCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	purged := 0
	for fingerprint, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			c.removeLocked(fingerprint, entry)
			purged++
		}
	}
	return purged
}

// Len returns the number of live entries, counting expired ones not yet
// purged.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) removeLocked(fingerprint string, entry *memoryEntry) {
	delete(c.entries, fingerprint)
	c.unindexLocked(fingerprint, entry)
}

func (c *MemoryCache) unindexLocked(fingerprint string, entry *memoryEntry) {
	for _, ref := range entry.Refs {
		if set, ok := c.byRef[ref]; ok {
			delete(set, fingerprint)
			if len(set) == 0 {
				delete(c.byRef, ref)
			}
		}
	}
}

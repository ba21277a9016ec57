package container

import (
	"sync"
	"time"
)

// cacheEntry is one remembered existence check.
type cacheEntry struct {
	present    bool
	expiration time.Time
}

// existenceCache remembers whether containers exist for a short TTL.
// The backend stays authoritative; a stale entry only skips one round trip.
type existenceCache struct {
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

func newExistenceCache(ttl time.Duration) *existenceCache {
	return &existenceCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// get returns the cached flag and whether it is still valid.
func (c *existenceCache) get(name string) (present, ok bool) {
	if c.ttl <= 0 {
		return false, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[name]
	if !exists {
		return false, false
	}
	if c.now().After(entry.expiration) {
		delete(c.entries, name)
		return false, false
	}
	return entry.present, true
}

func (c *existenceCache) set(name string, present bool) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = cacheEntry{present: present, expiration: c.now().Add(c.ttl)}
}

func (c *existenceCache) forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

package snapshot

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCacheTTL bounds how long a fetched facet is reused.
const DefaultCacheTTL = 30 * time.Second

type cacheKey struct {
	roomID string
	facet  Facet
}

type cacheEntry struct {
	value     interface{}
	fetchedAt time.Time
}

// Cache keeps fetched facets per (room, facet).
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

func NewCache(ttl time.Duration, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		entries: make(map[cacheKey]cacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *Cache) get(roomID string, facet Facet) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{roomID, facet}
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.clock.Since(entry.fetchedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *Cache) put(roomID string, facet Facet, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{roomID, facet}] = cacheEntry{value: value, fetchedAt: c.clock.Now()}
}

// Invalidate drops one facet, or every facet of the room when facet is empty.
func (c *Cache) Invalidate(roomID string, facet Facet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if facet != "" {
		delete(c.entries, cacheKey{roomID, facet})
		return
	}
	for key := range c.entries {
		if key.roomID == roomID {
			delete(c.entries, key)
		}
	}
}

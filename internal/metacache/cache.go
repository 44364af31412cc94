// Package metacache is a time-bounded key to snapshot store used to skip
// redundant catalog lookups on display paths.
//
// Entries expire a fixed TTL after Set. There is no capacity bound and no
// background sweeper: expired entries read as misses and are dropped on read
// or by Purge. The cache is never the source of truth for price decisions.
package metacache

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultTTL = 24 * time.Hour
	keyPrefix  = "game_"
)

// Snapshot is the cached view of one item.
type Snapshot struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type entry struct {
	snap      Snapshot
	expiresAt time.Time
}

type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry

	hits   atomic.Uint64
	misses atomic.Uint64
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an empty cache. ttl <= 0 selects DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{ttl: ttl, now: time.Now, entries: map[string]entry{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key namespaces an item id.
func Key(itemID string) string { return keyPrefix + itemID }

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) Get(key string) (Snapshot, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && now.Before(e.expiresAt) {
		c.hits.Add(1)
		return e.snap, true
	}
	if ok {
		c.mu.Lock()
		// re-check: a concurrent Set may have refreshed it
		if cur, still := c.entries[key]; still && !now.Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	c.misses.Add(1)
	return Snapshot{}, false
}

func (c *Cache) Set(key string, s Snapshot) {
	exp := c.now().Add(c.ttl)
	c.mu.Lock()
	c.entries[key] = entry{snap: s, expiresAt: exp}
	c.mu.Unlock()
}

// Len counts live entries only.
func (c *Cache) Len() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

func (c *Cache) Stats() Stats {
	return Stats{Entries: c.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

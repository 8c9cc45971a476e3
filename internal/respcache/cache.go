// Package respcache implements a TTL-keyed cache for server responses.
//
// Entries are keyed by (kind, key) where kind names the resource class
// (polygon files, history lists, ...) and key identifies the resource.
// An entry older than the TTL is treated as absent on the next read. The
// clock is injected so expiry is testable without real sleeps.
package respcache

import (
	"sync"
	"time"

	"github.com/mirrorlake/geodesk/internal/timeutil"
)

// Kind names a class of cached server responses.
type Kind string

const (
	KindPolygons    Kind = "polygons"
	KindPoints      Kind = "points"
	KindItems       Kind = "items"
	KindHistoryList Kind = "historyList"
	KindHistoryItem Kind = "historyItem"
	KindIndex       Kind = "index"
)

// DefaultTTL bounds the staleness of cached responses.
const DefaultTTL = 5 * time.Minute

type cacheKey struct {
	kind Kind
	key  string
}

type entry struct {
	stored time.Time
	value  interface{}
}

// Cache is a process-wide response cache with bounded staleness.
type Cache struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	ttl     time.Duration
	entries map[cacheKey]entry
}

// New creates a cache with the default TTL.
func New(clock timeutil.Clock) *Cache {
	return NewWithTTL(clock, DefaultTTL)
}

// NewWithTTL creates a cache with an explicit TTL.
func NewWithTTL(clock timeutil.Clock, ttl time.Duration) *Cache {
	return &Cache{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[cacheKey]entry),
	}
}

// Get returns the cached value for (kind, key), or false if there is no
// entry or the entry has expired. Expired entries are dropped.
func (c *Cache) Get(kind Kind, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := cacheKey{kind, key}
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.clock.Since(e.stored) > c.ttl {
		delete(c.entries, k)
		return nil, false
	}
	return e.value, true
}

// Set stores value under (kind, key) with the current timestamp,
// overwriting any prior entry.
func (c *Cache) Set(kind Kind, key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{kind, key}] = entry{stored: c.clock.Now(), value: value}
}

// Invalidate removes the entry for (kind, key) if present.
func (c *Cache) Invalidate(kind Kind, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{kind, key})
}

// InvalidateKind removes every entry of the given kind.
func (c *Cache) InvalidateKind(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.kind == kind {
			delete(c.entries, k)
		}
	}
}

// InvalidateFunc removes every entry of the given kind whose key matches
// the predicate.
func (c *Cache) InvalidateFunc(kind Kind, match func(key string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.kind == kind && match(k.key) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of live entries, counting expired ones until
// they are read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

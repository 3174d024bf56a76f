package catalog

import (
	"sync"
	"time"

	"github.com/shiftline/shiftline/internal/clock"
)

// defaultCacheTTL is the default entry lifetime named in §4.6.
const defaultCacheTTL = 60 * time.Second

// entry holds one cached value plus the instant it was stored, so callers
// can compute ageMs themselves (§4.6: "every read exposes (value, ageMs)").
type entry struct {
	value   any
	storedAt time.Time
}

// cache is a small in-memory TTL cache keyed by (table, id) or
// (table, query-fingerprint), per §4.6. It is a plain map guarded by a
// mutex rather than a third-party cache library: the corpus's own caches
// (e.g. LumenPrima's metrics aggregator) use the same bare
// map+sync.Mutex+TTL shape for similarly small, single-process working
// sets, and nothing in the pack imports a dedicated caching library
// (no ristretto, no bigcache, no groupcache).
type cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	items map[string]entry
}

func newCache(ttl time.Duration, c clock.Clock) *cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &cache{ttl: ttl, clock: c, items: make(map[string]entry)}
}

// get returns the cached value, its age, and whether it is still live.
func (c *cache) get(key string) (value any, ageMs int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.items[key]
	if !found {
		return nil, 0, false
	}
	age := c.clock.Now().Sub(e.storedAt)
	if age > c.ttl {
		return nil, 0, false
	}
	return e.value, age.Milliseconds(), true
}

func (c *cache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry{value: value, storedAt: c.clock.Now()}
}

// invalidate drops a cached entry; used after a write-through (§4.6).
func (c *cache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// maxWritebackAgeMs is the ceiling named in §4.6: FSM code must not use a
// cached value older than this for a transition that writes back.
const maxWritebackAgeMs = 5000

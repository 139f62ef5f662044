/**
 * @description
 * This package provides a process-scoped, time-bounded cache with
 * stale-while-revalidate refresh. It replaces the ad hoc global maps the rate
 * pipeline previously leaned on with a single injectable instance that is
 * constructed once in main and cleared only through the explicit admin
 * invalidation endpoint.
 *
 * @notes
 * - Entries are replaced atomically under the mutex: a Get racing a background
 *   refresh observes either the old value or the fully stored new one, never a
 *   partial state.
 * - Background refresh failures are logged and never surfaced to the caller
 *   that triggered them; the stale value keeps serving until its TTL runs out.
 */

package ratecache

import (
	"context"
	"log"
	"regexp"
	"sync"
	"time"
)

// refreshFactor is the fraction of an entry's TTL after which a background
// refresh is triggered while the cached value is still served.
const refreshFactor = 0.8

// Fetcher produces a fresh value for a cache key. Synchronous fills receive
// the caller's context; background refreshes receive one with cancellation
// stripped, since the refresh outlives the request that triggered it.
type Fetcher func(ctx context.Context) (interface{}, error)

type entry struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) age(now time.Time) time.Duration {
	return now.Sub(e.storedAt)
}

func (e entry) expired(now time.Time) bool {
	return e.age(now) > e.ttl
}

// Cache is a concurrency-safe TTL cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key, or ok=false if the key is absent or
// its TTL has elapsed. Expired entries are evicted on read.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL, overwriting any prior entry.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, storedAt: c.now(), ttl: ttl}
}

// GetOrFetch returns the cached value when fresh; otherwise it calls fetch
// synchronously, stores the result, and returns it. A fetch error propagates
// to the caller unmodified and nothing is stored.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch Fetcher) (interface{}, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, value, ttl)
	return value, nil
}

// BackgroundRefresh serves the cached value without waiting on I/O whenever a
// live entry exists. Once the entry's age passes refreshFactor of its TTL the
// fetch runs asynchronously and replaces the entry on success. With no cached
// value at all it behaves like GetOrFetch and blocks once.
//
// Concurrent callers for the same aging key may each trigger a refresh; market
// data is idempotent and last-write-wins, so the duplication is accepted
// rather than deduplicated.
func (c *Cache) BackgroundRefresh(ctx context.Context, key string, ttl time.Duration, fetch Fetcher) (interface{}, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	now := c.now()
	if ok && e.expired(now) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return c.GetOrFetch(ctx, key, ttl, fetch)
	}

	if e.age(now) > time.Duration(refreshFactor*float64(e.ttl)) {
		// The goroutine keeps the caller's context values but must not die
		// with the request that happened to cross the refresh threshold.
		refreshCtx := context.WithoutCancel(ctx)
		go func() {
			value, err := fetch(refreshCtx)
			if err != nil {
				log.Printf("level=warn component=rate_cache op=background_refresh outcome=failed key=%s err=%v", key, err)
				return
			}
			c.Set(key, value, ttl)
		}()
	}

	return e.value, nil
}

// Invalidate removes a single key immediately.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidatePattern removes every key matching the given regular expression
// and returns how many entries were dropped.
func (c *Cache) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cleared := 0
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			cleared++
		}
	}
	return cleared, nil
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

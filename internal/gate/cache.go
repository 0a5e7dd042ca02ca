package gate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LookupFunc answers whether an address is blocked in the authoritative
// store. The cache calls it only on a miss.
type LookupFunc func(ctx context.Context, ip string) (bool, error)

type cacheEntry struct {
	blocked bool
	expires time.Time
}

// BlockCache is a read-through TTL cache over the blocklist table. Both
// outcomes of a lookup are cached, so an unblocked address does not hit the
// store on every request. There is no invalidation channel: a block or
// unblock becomes effective within one TTL.
type BlockCache struct {
	lookup LookupFunc
	ttl    time.Duration
	now    func() time.Time

	entries sync.Map
	group   singleflight.Group
}

type CacheOption func(*BlockCache)

// WithClock replaces the cache's time source. Tests use this to expire
// entries deterministically.
func WithClock(now func() time.Time) CacheOption {
	return func(c *BlockCache) {
		c.now = now
	}
}

func NewBlockCache(lookup LookupFunc, ttl time.Duration, opts ...CacheOption) *BlockCache {
	cache := &BlockCache{
		lookup: lookup,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// IsBlocked returns the cached decision for ip, falling through to the store
// on a miss. Concurrent misses for the same address are coalesced so the
// store sees a single query and every racer shares one TTL window.
func (c *BlockCache) IsBlocked(ctx context.Context, ip string) (bool, error) {
	if entry, ok := c.load(ip); ok {
		return entry.blocked, nil
	}

	result, err, _ := c.group.Do(ip, func() (interface{}, error) {
		if entry, ok := c.load(ip); ok {
			return entry.blocked, nil
		}

		blocked, err := c.lookup(ctx, ip)
		if err != nil {
			return false, err
		}

		c.entries.Store(ip, cacheEntry{
			blocked: blocked,
			expires: c.now().Add(c.ttl),
		})
		return blocked, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (c *BlockCache) load(ip string) (cacheEntry, bool) {
	raw, ok := c.entries.Load(ip)
	if !ok {
		return cacheEntry{}, false
	}
	entry := raw.(cacheEntry)
	if !c.now().Before(entry.expires) {
		c.entries.Delete(ip)
		return cacheEntry{}, false
	}
	return entry, true
}

// Len counts live entries, dropping expired ones on the way.
func (c *BlockCache) Len() int {
	count := 0
	now := c.now()
	c.entries.Range(func(key, raw any) bool {
		if now.Before(raw.(cacheEntry).expires) {
			count++
		} else {
			c.entries.Delete(key)
		}
		return true
	})
	return count
}

// StartJanitor periodically drops expired entries so the map does not grow
// with one stale key per client ever seen.
func (c *BlockCache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := c.now()
			c.entries.Range(func(key, raw any) bool {
				if !now.Before(raw.(cacheEntry).expires) {
					c.entries.Delete(key)
				}
				return true
			})
		}
	}
}

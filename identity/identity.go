// Package identity provides helpers around the resolve function the
// thumbnail cache is constructed with: a static map-backed resolver for
// tests and fixed catalogs, and a TTL-bounded memoizing wrapper for
// resolvers that hit a filesystem or metadata service.
package identity

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Resolver maps a request key to the canonical id of the underlying
// document. ok == false means the key is unidentifiable.
type Resolver[K comparable, ID comparable] func(key K) (ID, bool)

// Static returns a Resolver backed by a fixed table. The table is not
// copied; callers must not mutate it concurrently with lookups.
func Static[K comparable, ID comparable](table map[K]ID) Resolver[K, ID] {
	return func(key K) (ID, bool) {
		id, ok := table[key]
		return id, ok
	}
}

// resolution caches both outcomes: failures are remembered too, so a
// flood of requests for an unidentifiable key does not hammer the
// underlying lookup. The TTL bounds how stale either answer can get —
// relevant when a rename makes a key resolvable later.
type resolution[ID comparable] struct {
	id ID
	ok bool
}

// CachedResolver memoizes an expensive Resolver with a per-entry TTL.
// Safe for concurrent use.
type CachedResolver[K comparable, ID comparable] struct {
	next  Resolver[K, ID]
	cache *ttlcache.Cache[K, resolution[ID]]
}

// Cached wraps next with a TTL cache. Call Stop when done to release the
// expiration goroutine.
func Cached[K comparable, ID comparable](next Resolver[K, ID], ttl time.Duration) *CachedResolver[K, ID] {
	c := ttlcache.New(
		ttlcache.WithTTL[K, resolution[ID]](ttl),
		ttlcache.WithDisableTouchOnHit[K, resolution[ID]](),
	)
	go c.Start()
	return &CachedResolver[K, ID]{next: next, cache: c}
}

// Resolve returns the memoized resolution for key, consulting the
// wrapped resolver on a cache miss.
func (r *CachedResolver[K, ID]) Resolve(key K) (ID, bool) {
	if item := r.cache.Get(key); item != nil {
		res := item.Value()
		return res.id, res.ok
	}
	id, ok := r.next(key)
	r.cache.Set(key, resolution[ID]{id: id, ok: ok}, ttlcache.DefaultTTL)
	return id, ok
}

// Forget drops the memoized resolution for key, forcing the next Resolve
// through the wrapped resolver. Use it when a rename is known to have
// happened rather than waiting out the TTL.
func (r *CachedResolver[K, ID]) Forget(key K) {
	r.cache.Delete(key)
}

// Stop halts the expiration goroutine started by Cached.
func (r *CachedResolver[K, ID]) Stop() {
	r.cache.Stop()
}

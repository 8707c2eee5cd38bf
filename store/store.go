// Package store provides the bounded, thread-safe image store backing
// the thumbnail cache: an id-keyed LRU (policy pluggable) with an entry
// capacity and an optional resident-cost budget.
//
// Eviction is silent: an evicted id simply misses on the next lookup,
// which makes the cache re-trigger a load. The store never notifies
// anyone beyond the optional OnEvict hook and metrics.
//
// The store defaults to a single shard so the recency order — and with
// it "inserting capacity+1 ids evicts exactly the least recently used" —
// is exact. Sharding is available for stores large enough that lock
// contention matters more than exact global ordering.
package store

import (
	"github.com/macteo/thumbcache/internal/util"
	"github.com/macteo/thumbcache/policy"
	"github.com/macteo/thumbcache/policy/lru"
)

// Options configures a Store. Zero values are safe; defaults are applied
// in New():
//   - nil Policy  => LRU
//   - Shards <= 0 => 1 (exact recency order)
//   - nil Metrics => NoopMetrics
type Options[ID comparable, V any] struct {
	// Capacity is the resident entry limit. Must be > 0.
	Capacity int

	// Shards splits the store into independently locked partitions.
	// Values > 1 are rounded up to a power of two; the entry capacity
	// and cost budget are split evenly across shards, which makes the
	// recency order approximate.
	Shards int

	// Policy selects the eviction strategy; nil means LRU.
	Policy policy.Policy[ID, V]

	// Cost weighs a resident value (e.g. decoded image bytes). With a
	// non-nil Cost and MaxCost > 0, the store also trims until the total
	// cost fits the budget.
	Cost    func(v V) int
	MaxCost int64

	// OnEvict fires for every eviction, under the shard lock.
	OnEvict func(id ID, v V, reason EvictReason)

	// Metrics receives hit/miss/evict/size signals.
	Metrics Metrics
}

// Store is an id-keyed bounded image store. All methods are safe for
// concurrent use; typical operation cost is amortized O(1).
type Store[ID comparable, V any] struct {
	shards []*shard[ID, V]
	opt    Options[ID, V]
}

// New constructs a Store with the provided Options.
func New[ID comparable, V any](opt Options[ID, V]) *Store[ID, V] {
	if opt.Capacity <= 0 {
		panic("store: Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	pol := opt.Policy
	if pol == nil {
		pol = lru.New[ID, V]()
	}

	sh := opt.Shards
	if sh <= 1 {
		sh = 1
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	perShardCap := (opt.Capacity + sh - 1) / sh
	var perShardCost int64
	if opt.MaxCost > 0 {
		perShardCost = (opt.MaxCost + int64(sh) - 1) / int64(sh)
	}

	shards := make([]*shard[ID, V], sh)
	for i := range shards {
		shards[i] = newShard(perShardCap, perShardCost, pol, opt)
	}
	return &Store[ID, V]{shards: shards, opt: opt}
}

// Get returns the image for id and promotes the entry.
func (s *Store[ID, V]) Get(id ID) (V, bool) {
	return s.shardFor(id).Get(id)
}

// Contains reports whether id is resident, with no recency or metrics
// side effects.
func (s *Store[ID, V]) Contains(id ID) bool {
	return s.shardFor(id).Contains(id)
}

// Set inserts or overwrites the image for id, evicting as needed to stay
// within the capacity and cost limits.
func (s *Store[ID, V]) Set(id ID, v V) {
	s.shardFor(id).Set(id, v, s.costOf(v))
}

// Remove deletes id if resident and returns true on success.
func (s *Store[ID, V]) Remove(id ID) bool {
	return s.shardFor(id).Remove(id)
}

// Len returns the total number of resident entries.
func (s *Store[ID, V]) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.Len()
	}
	return total
}

// ---- helpers ----

func (s *Store[ID, V]) shardFor(id ID) *shard[ID, V] {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	return s.shards[util.ShardIndex(util.Hash64(id), len(s.shards))]
}

func (s *Store[ID, V]) costOf(v V) int32 {
	if s.opt.Cost == nil {
		return 0
	}
	return util.ClampInt32(s.opt.Cost(v))
}

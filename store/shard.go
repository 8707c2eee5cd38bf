package store

import (
	"sync"

	"github.com/macteo/thumbcache/internal/util"
	"github.com/macteo/thumbcache/policy"
)

// shard is an independent partition of the store with its own lock, an
// id->node map, and an intrusive recency list (head=MRU, tail=LRU).
type shard[ID comparable, V any] struct {
	// ---- guarded by mu ----
	mu      sync.RWMutex
	m       map[ID]*node[ID, V]
	head    *node[ID, V] // MRU
	tail    *node[ID, V] // LRU
	len     int
	cost    int64 // total resident cost
	cap     int   // per-shard entry capacity
	maxCost int64 // per-shard cost budget (0 = disabled)

	pol policy.ShardPolicy[ID, V]
	opt Options[ID, V]

	// ---- hot counters (padded to avoid false sharing) ----
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newShard[ID comparable, V any](capacity int, maxCost int64, pol policy.Policy[ID, V], opt Options[ID, V]) *shard[ID, V] {
	s := &shard[ID, V]{
		m:       make(map[ID]*node[ID, V], capacity),
		cap:     capacity,
		maxCost: maxCost,
		opt:     opt,
	}
	s.pol = pol.New(shardHooks[ID, V]{s: s})
	return s
}

// Set inserts or overwrites an entry and promotes it per the policy.
func (s *shard[ID, V]) Set(id ID, v V, cost int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[id]; ok {
		// In-place overwrite: adjust the cost delta and promote.
		oldCost := int64(n.cost)
		n.val = v
		n.cost = cost
		s.cost += int64(cost) - oldCost

		s.pol.OnUpdate(n)
		s.enforceLimitsLocked()
		return
	}

	n := &node[ID, V]{id: id, val: v, cost: cost}
	s.m[id] = n

	if ev := s.pol.OnAdd(n); ev != nil {
		s.evictNode(ev.(*node[ID, V]), EvictPolicy)
	}
	s.enforceLimitsLocked()
}

// Get returns the resident image and promotes the entry per the policy.
func (s *shard[ID, V]) Get(id ID) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[id]
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}
	s.pol.OnGet(n)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.val, true
}

// Contains reports residency without promoting and without counting a
// hit or miss. The scheduler uses it to record whether a load had a
// prior cached value.
func (s *shard[ID, V]) Contains(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[id]
	return ok
}

// Remove deletes an entry. Returns true if it was resident.
func (s *shard[ID, V]) Remove(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[id]
	if !ok {
		return false
	}
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, id)
	// Explicit removal is not an eviction; it is not counted as one.
	return true
}

// Len returns the number of resident entries in this shard.
func (s *shard[ID, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// -------------------- internals (mu held) --------------------

// insertFront inserts n at MRU in O(1).
func (s *shard[ID, V]) insertFront(n *node[ID, V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.cost += int64(n.cost)
}

// moveToFront promotes n to MRU in O(1).
func (s *shard[ID, V]) moveToFront(n *node[ID, V]) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode unlinks n and updates counters in O(1).
func (s *shard[ID, V]) removeNode(n *node[ID, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
	s.cost -= int64(n.cost)
	if s.cost < 0 {
		s.cost = 0
	}
}

// evictNode removes the node, updates counters, and fires OnEvict.
func (s *shard[ID, V]) evictNode(n *node[ID, V], reason EvictReason) {
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, n.id)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		// Runs under the shard lock; callbacks must stay lightweight
		// and must not call back into the store.
		cb(n.id, n.val, reason)
	}
}

// enforceLimitsLocked trims from the LRU end until both the entry count
// and the cost budget are satisfied.
func (s *shard[ID, V]) enforceLimitsLocked() {
	for s.len > s.cap {
		tail := s.tail
		if tail == nil {
			break
		}
		s.evictNode(tail, EvictPolicy)
	}
	if s.maxCost > 0 {
		for s.cost > s.maxCost {
			tail := s.tail
			if tail == nil {
				break
			}
			s.evictNode(tail, EvictCost)
		}
	}
	s.opt.Metrics.Size(s.len, s.cost)
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's list primitives to policy.Hooks.
type shardHooks[ID comparable, V any] struct{ s *shard[ID, V] }

func (h shardHooks[ID, V]) MoveToFront(x policy.Node[ID, V]) { h.s.moveToFront(x.(*node[ID, V])) }
func (h shardHooks[ID, V]) PushFront(x policy.Node[ID, V])   { h.s.insertFront(x.(*node[ID, V])) }
func (h shardHooks[ID, V]) Remove(x policy.Node[ID, V])      { h.s.removeNode(x.(*node[ID, V])) }
func (h shardHooks[ID, V]) Back() policy.Node[ID, V] {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
func (h shardHooks[ID, V]) Len() int { return h.s.len }

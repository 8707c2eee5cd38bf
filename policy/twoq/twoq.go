// Package twoq implements the 2Q eviction policy.
//
// 2Q suits thumbnail workloads: a fast scroll through a folder touches
// every item exactly once, and plain LRU lets that scan flush the
// entries the user keeps coming back to. 2Q parks first-time entries in
// a probation queue (A1in) and only admits them to the main queue (Am)
// on a second touch, so one-shot scans age out without disturbing Am.
package twoq

import (
	"container/list"

	"github.com/macteo/thumbcache/policy"
)

// twoQ holds the per-shard 2Q state.
//
//   - A1in: probation queue for first-time admissions (own list + index).
//   - Am: everything not indexed in A1in; its ordering is the shard's
//     recency list, driven through hooks.
//   - A1out: ghost ids of recently demoted A1in entries; re-admission of
//     a ghost bypasses probation.
//
// All methods run under the shard lock.
type twoQ[ID comparable, V any] struct {
	h policy.Hooks[ID, V]

	capIn    int // A1in capacity (per shard)
	capGhost int // A1out capacity (per shard)

	inList *list.List
	inIdx  map[policy.Node[ID, V]]*list.Element

	ghostList *list.List
	ghostIdx  map[ID]*list.Element
}

type factory[ID comparable, V any] struct {
	capIn    int
	capGhost int
}

// New builds a 2Q policy factory. Common sizing: capIn around 25% of the
// shard capacity, capGhost around 50–100%. Sizes are per shard.
func New[ID comparable, V any](capIn, capGhost int) policy.Policy[ID, V] {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return factory[ID, V]{capIn: capIn, capGhost: capGhost}
}

func (f factory[ID, V]) New(h policy.Hooks[ID, V]) policy.ShardPolicy[ID, V] {
	return &twoQ[ID, V]{
		h:         h,
		capIn:     f.capIn,
		capGhost:  f.capGhost,
		inList:    list.New(),
		inIdx:     make(map[policy.Node[ID, V]]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[ID]*list.Element),
	}
}

// OnAdd admission: a ghost id goes straight to Am; everything else
// enters A1in. When A1in overflows, its LRU is proposed as the victim.
func (q *twoQ[ID, V]) OnAdd(n policy.Node[ID, V]) (evict policy.Node[ID, V]) {
	id := n.ID()
	if ge, ok := q.ghostIdx[id]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, id)
		q.h.PushFront(n)
		return nil
	}

	q.h.PushFront(n)
	q.inIdx[n] = q.inList.PushFront(n)

	if q.inList.Len() > q.capIn {
		if back := q.inList.Back(); back != nil {
			return back.Value.(policy.Node[ID, V])
		}
	}
	return nil
}

// OnGet promotes A1in entries to Am (second touch) and marks the node
// most-recently-used either way.
func (q *twoQ[ID, V]) OnGet(n policy.Node[ID, V]) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

// OnUpdate follows OnGet semantics.
func (q *twoQ[ID, V]) OnUpdate(n policy.Node[ID, V]) { q.OnGet(n) }

// OnRemove remembers demoted A1in ids as ghosts; removals from Am leave
// no trace.
func (q *twoQ[ID, V]) OnRemove(n policy.Node[ID, V]) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)

	id := n.ID()
	if old := q.ghostIdx[id]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[id] = q.ghostList.PushFront(id)

	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		if tail == nil {
			break
		}
		delete(q.ghostIdx, tail.Value.(ID))
		q.ghostList.Remove(tail)
	}
}

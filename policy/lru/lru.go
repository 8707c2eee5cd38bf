// Package lru implements the default least-recently-used eviction policy.
package lru

import "github.com/macteo/thumbcache/policy"

type lru[ID comparable, V any] struct {
	h policy.Hooks[ID, V]
}

type factory[ID comparable, V any] struct{}

// New returns a Policy factory producing per-shard LRU instances.
func New[ID comparable, V any]() policy.Policy[ID, V] { return factory[ID, V]{} }

func (factory[ID, V]) New(h policy.Hooks[ID, V]) policy.ShardPolicy[ID, V] {
	return &lru[ID, V]{h: h}
}

// OnAdd admits the entry at MRU. LRU never proposes a victim itself;
// the shard trims from the back when over budget.
func (p *lru[ID, V]) OnAdd(n policy.Node[ID, V]) (evict policy.Node[ID, V]) {
	p.h.PushFront(n)
	return nil
}

// OnGet records use by promoting to MRU.
func (p *lru[ID, V]) OnGet(n policy.Node[ID, V]) { p.h.MoveToFront(n) }

// OnUpdate treats an overwrite as recent use.
func (p *lru[ID, V]) OnUpdate(n policy.Node[ID, V]) { p.h.MoveToFront(n) }

// OnRemove has no policy-private state to clean up.
func (p *lru[ID, V]) OnRemove(policy.Node[ID, V]) {}

// Package policy defines the pluggable eviction interfaces used by the
// thumbnail store. A policy decides which resident entry to give up when
// the store is over budget; the store owns the map and the actual
// deletion and exposes O(1) list primitives through Hooks.
package policy

// Node is the minimal view of a store entry a policy gets to see:
// the canonical id and a pointer to the resident value. The pointer
// allows in-place updates without re-linking the intrusive node.
type Node[ID comparable, V any] interface {
	ID() ID
	Value() *V
}

// Hooks are the O(1) recency-list operations a policy may invoke on its
// shard. The list runs MRU (front) to LRU (back).
//
// Every hook call happens with the shard lock held. Hooks manage only
// the list; the id->node map stays with the shard.
type Hooks[ID comparable, V any] interface {
	// MoveToFront marks the node most-recently-used.
	MoveToFront(Node[ID, V])
	// PushFront admits the node at the MRU position.
	PushFront(Node[ID, V])
	// Remove detaches the node from the recency list.
	Remove(Node[ID, V])
	// Back returns the current LRU node, or nil when the shard is empty.
	Back() Node[ID, V]
	// Len returns the number of resident nodes in the shard.
	Len() int
}

// ShardPolicy is a policy instance bound to one shard's hooks.
// All methods run under that shard's lock.
//
//   - OnAdd may return a victim the shard must evict (policies with an
//     admission queue use this; plain LRU returns nil and lets the shard
//     trim by capacity).
//   - OnGet and OnUpdate record recent use.
//   - OnRemove lets the policy update private state (ghost lists etc.);
//     the shard performs the deletion itself.
type ShardPolicy[ID comparable, V any] interface {
	OnAdd(Node[ID, V]) (evict Node[ID, V])
	OnGet(Node[ID, V])
	OnUpdate(Node[ID, V])
	OnRemove(Node[ID, V])
}

// Policy is a factory producing shard-local instances bound to a
// particular shard's hooks.
type Policy[ID comparable, V any] interface {
	New(Hooks[ID, V]) ShardPolicy[ID, V]
}

package store

// node is an intrusive doubly linked list element owned by a shard.
// It carries the id/image alongside the recency links and the cost used
// for byte-budget accounting.
type node[ID comparable, V any] struct {
	id  ID
	val V

	// Recency links: head is MRU, tail is LRU.
	prev *node[ID, V]
	next *node[ID, V]

	// Logical weight (typically decoded image bytes) when MaxCost is set.
	cost int32
}

// ID returns the canonical id (policy.Node interface).
func (n *node[ID, V]) ID() ID { return n.id }

// Value returns a pointer to the resident image (policy.Node interface).
// Only read or write through it while holding the shard lock.
func (n *node[ID, V]) Value() *V { return &n.val }

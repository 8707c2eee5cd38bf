package store

// EvictReason explains why an entry left the store.
type EvictReason int

const (
	// EvictPolicy — chosen by the eviction policy (LRU tail, 2Q probation).
	EvictPolicy EvictReason = iota
	// EvictCost — removed to satisfy the byte budget (MaxCost).
	EvictCost
)

// Metrics receives store-level observability signals.
// NoopMetrics is used when nothing is configured.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, cost int64)
}

// NoopMetrics discards every signal. Safe for concurrent use.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(int, int64)   {}

var _ Metrics = NoopMetrics{}

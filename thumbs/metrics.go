package thumbs

import (
	"time"

	"github.com/macteo/thumbcache/store"
)

// Metrics exposes cache-level observability hooks on top of the store's
// hit/miss/evict/size signals. NoopMetrics is used by default; plug the
// Prometheus adapter (metrics/prom) to export them.
type Metrics interface {
	store.Metrics

	// Unresolved counts requests whose key could not be resolved.
	Unresolved()
	// Enqueued counts ids appended to the dispatch queue.
	Enqueued()
	// Dispatched counts loads handed to a worker.
	Dispatched()
	// Canceled counts pre-dispatch cancellations.
	Canceled()
	// LoadOK / LoadFail record a completed load and its duration.
	LoadOK(d time.Duration)
	LoadFail(d time.Duration)
	// Flushed records one notification flush and its batch size.
	Flushed(keys int)
	// Depth reports the queue length and running-load count after each
	// scheduler pass.
	Depth(queued, running int)
}

// NoopMetrics discards every signal.
type NoopMetrics struct{ store.NoopMetrics }

func (NoopMetrics) Unresolved()            {}
func (NoopMetrics) Enqueued()              {}
func (NoopMetrics) Dispatched()            {}
func (NoopMetrics) Canceled()              {}
func (NoopMetrics) LoadOK(time.Duration)   {}
func (NoopMetrics) LoadFail(time.Duration) {}
func (NoopMetrics) Flushed(int)            {}
func (NoopMetrics) Depth(int, int)         {}

var _ Metrics = NoopMetrics{}

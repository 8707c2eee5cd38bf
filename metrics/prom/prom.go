// Package prom exports the cache's metrics through Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/macteo/thumbcache/store"
	"github.com/macteo/thumbcache/thumbs"
)

// Adapter implements thumbs.Metrics (and with it store.Metrics) on top
// of Prometheus collectors. Safe for concurrent use; all Prometheus
// metric types are goroutine-safe.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evicts     *prometheus.CounterVec
	sizeEnt    prometheus.Gauge
	sizeCost   prometheus.Gauge
	unresolved prometheus.Counter
	enqueued   prometheus.Counter
	dispatched prometheus.Counter
	canceled   prometheus.Counter
	loadDur    *prometheus.HistogramVec
	flushes    prometheus.Counter
	flushKeys  prometheus.Counter
	queued     prometheus.Gauge
	running    prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "hits_total", Help: "Store hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "misses_total", Help: "Store misses",
		}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "evictions_total", Help: "Store evictions by reason",
		}, []string{"reason"}),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "size_entries", Help: "Resident thumbnails",
		}),
		sizeCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "size_cost", Help: "Total resident cost",
		}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "unresolved_total", Help: "Requests whose key could not be resolved",
		}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "enqueued_total", Help: "Ids appended to the dispatch queue",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "dispatched_total", Help: "Loads handed to a worker",
		}),
		canceled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "cancels_total", Help: "Pre-dispatch cancellations",
		}),
		loadDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "load_duration_seconds", Help: "Load duration by outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "flushes_total", Help: "Notification flushes delivered",
		}),
		flushKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "flushed_keys_total", Help: "Request keys delivered across all flushes",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "queue_depth", Help: "Ids awaiting dispatch",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, ConstLabels: constLabels,
			Name: "running_loads", Help: "Loads currently running",
		}),
	}
	reg.MustRegister(
		a.hits, a.misses, a.evicts, a.sizeEnt, a.sizeCost,
		a.unresolved, a.enqueued, a.dispatched, a.canceled,
		a.loadDur, a.flushes, a.flushKeys, a.queued, a.running,
	)
	return a
}

func (a *Adapter) Hit()  { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

func (a *Adapter) Evict(r store.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

func (a *Adapter) Size(entries int, cost int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeCost.Set(float64(cost))
}

func (a *Adapter) Unresolved() { a.unresolved.Inc() }
func (a *Adapter) Enqueued()   { a.enqueued.Inc() }
func (a *Adapter) Dispatched() { a.dispatched.Inc() }
func (a *Adapter) Canceled()   { a.canceled.Inc() }

func (a *Adapter) LoadOK(d time.Duration) {
	a.loadDur.WithLabelValues("ok").Observe(d.Seconds())
}

func (a *Adapter) LoadFail(d time.Duration) {
	a.loadDur.WithLabelValues("fail").Observe(d.Seconds())
}

func (a *Adapter) Flushed(keys int) {
	a.flushes.Inc()
	a.flushKeys.Add(float64(keys))
}

func (a *Adapter) Depth(queued, running int) {
	a.queued.Set(float64(queued))
	a.running.Set(float64(running))
}

// reason maps an eviction reason to a stable label value.
func reason(r store.EvictReason) string {
	switch r {
	case store.EvictCost:
		return "cost"
	default:
		return "policy"
	}
}

// Compile-time check: Adapter satisfies the full metrics surface.
var _ thumbs.Metrics = (*Adapter)(nil)

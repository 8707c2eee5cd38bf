package thumbs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/macteo/thumbcache/store"
)

// cache owns the coordinator state. Everything under mu is mutated only
// while it is held, which gives the pending/queue/running/fresh/batch
// group its single-writer discipline; the store carries its own locks so
// workers and callers can touch it concurrently.
type cache[K comparable, ID comparable, V any] struct {
	opt   Options[K, ID, V]
	store *store.Store[ID, V]

	// ---- guarded by mu (the coordinator state) ----
	mu      sync.Mutex
	pending map[ID]map[K]struct{} // id -> keys waiting on its load; present iff queued or running
	queue   []ID                  // ids awaiting dispatch, FIFO, each at most once
	running int                   // dispatched loads not yet completed
	fresh   map[ID]int64          // id -> freshness deadline (UnixNano; 0 = until dirtied)
	batch   map[K]struct{}        // keys ready since the last flush

	// Flusher machinery. wake has capacity 1 so redundant signals coalesce.
	wake        chan struct{}
	stop        chan struct{}
	flusherDone chan struct{}

	loadCtx     context.Context
	cancelLoads context.CancelFunc
	closed      atomic.Bool
}

// New constructs a thumbnail cache with the provided Options.
// Resolve, Load, and Scale are mandatory; missing ones are programmer
// errors and panic. Defaults:
//   - Capacity <= 0 -> DefaultCapacity
//   - Workers  <= 0 -> DefaultWorkers
//   - nil Metrics   -> NoopMetrics
func New[K comparable, ID comparable, V any](opt Options[K, ID, V]) Cache[K, V] {
	if opt.Resolve == nil {
		panic("thumbs: Resolve must be provided")
	}
	if opt.Load == nil {
		panic("thumbs: Load must be provided")
	}
	if opt.Scale == nil {
		panic("thumbs: Scale must be provided")
	}
	if opt.Capacity <= 0 {
		opt.Capacity = DefaultCapacity
	}
	if opt.Workers <= 0 {
		opt.Workers = DefaultWorkers
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	c := &cache[K, ID, V]{
		opt:         opt,
		pending:     make(map[ID]map[K]struct{}),
		fresh:       make(map[ID]int64),
		batch:       make(map[K]struct{}),
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		flusherDone: make(chan struct{}),
	}
	c.store = store.New(store.Options[ID, V]{
		Capacity: opt.Capacity,
		Shards:   opt.Shards,
		Policy:   opt.Policy,
		Cost:     opt.Cost,
		MaxCost:  opt.MaxCost,
		OnEvict:  c.onStoreEvict,
		Metrics:  opt.Metrics,
	})
	c.loadCtx, c.cancelLoads = context.WithCancel(context.Background())

	go c.flusher()
	return c
}

// ---- Cache[K, V] implementation ----

// Request returns the freshest immediately available image for key and,
// when the entry is missing or stale, arranges a background load. It
// never blocks on I/O.
func (c *cache[K, ID, V]) Request(key K) V {
	if c.closed.Load() {
		return c.opt.Placeholder
	}
	id, ok := c.opt.Resolve(key)
	if !ok {
		c.opt.Metrics.Unresolved()
		return c.opt.Placeholder
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	img, cached := c.store.Get(id)
	if cached && c.freshLocked(id) {
		return img
	}

	best := c.opt.Placeholder
	if cached {
		best = img
	}

	// Piggy-back on an already queued or running load.
	if keys, inFlight := c.pending[id]; inFlight {
		keys[key] = struct{}{}
		return best
	}

	c.pending[id] = map[K]struct{}{key: {}}
	c.queue = append(c.queue, id)
	c.opt.Metrics.Enqueued()
	c.scheduleLocked()
	return best
}

// MarkAllDirty clears every freshness marker. Cached images keep being
// served; the next Request per id schedules a reload.
func (c *cache[K, ID, V]) MarkAllDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.fresh)
}

// MarkDirty clears the freshness marker for the id key resolves to.
func (c *cache[K, ID, V]) MarkDirty(key K) {
	id, ok := c.opt.Resolve(key)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.fresh, id)
}

// Remove drops the cached entry and freshness marker for the id key
// resolves to. A load already in flight for that id is not cancelled and
// will repopulate the entry when it completes.
func (c *cache[K, ID, V]) Remove(key K) {
	id, ok := c.opt.Resolve(key)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(id)
	delete(c.fresh, id)
}

// Cancel discards the queued load for the id key resolves to, dropping
// all piggy-backed keys. Dispatched loads run to completion; cancelling
// them is a no-op.
func (c *cache[K, ID, V]) Cancel(key K) {
	id, ok := c.opt.Resolve(key)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, queued := range c.queue {
		if queued != id {
			continue
		}
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
		delete(c.pending, id)
		c.opt.Metrics.Canceled()
		c.opt.Metrics.Depth(len(c.queue), c.running)
		return
	}
}

// Len returns the number of resident thumbnails.
func (c *cache[K, ID, V]) Len() int { return c.store.Len() }

// Close stops the flusher (delivering any accumulated batch first) and
// cancels the context handed to in-flight loads. Further Requests return
// the placeholder. Close is idempotent.
func (c *cache[K, ID, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancelLoads()
	close(c.stop)
	<-c.flusherDone
	return nil
}

// ---- internals ----

// freshLocked reports whether id is marked fresh and the marker has not
// aged past FreshFor. Expired markers are removed lazily.
func (c *cache[K, ID, V]) freshLocked(id ID) bool {
	deadline, ok := c.fresh[id]
	if !ok {
		return false
	}
	if deadline != 0 && c.now() > deadline {
		delete(c.fresh, id)
		return false
	}
	return true
}

// markFreshLocked records that id's cached value is current as of now.
func (c *cache[K, ID, V]) markFreshLocked(id ID) {
	if c.opt.FreshFor <= 0 {
		c.fresh[id] = 0
		return
	}
	c.fresh[id] = c.now() + int64(c.opt.FreshFor)
}

func (c *cache[K, ID, V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// onStoreEvict prunes the freshness marker of an evicted id so the map
// cannot outgrow the store. Store mutations happen only with c.mu held
// (Set and Remove are coordinator-side), so touching c.fresh here is
// covered by the same lock. User callbacks are forwarded afterwards.
func (c *cache[K, ID, V]) onStoreEvict(id ID, v V, reason store.EvictReason) {
	delete(c.fresh, id)
	if cb := c.opt.OnEvict; cb != nil {
		cb(id, v, reason)
	}
}

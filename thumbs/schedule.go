package thumbs

import (
	"fmt"
	"time"
)

// scheduleLocked drains the queue to a fixed point: it keeps dispatching
// while a worker slot is free and ids are waiting. Running to a fixed
// point matters — a completion that frees a slot must be able to admit
// more than one queued id when earlier passes ran at the concurrency
// limit.
func (c *cache[K, ID, V]) scheduleLocked() {
	for c.running < c.opt.Workers && len(c.queue) > 0 {
		id := c.queue[0]
		var zero ID
		c.queue[0] = zero // drop the reference before reslicing
		c.queue = c.queue[1:]

		keys := c.pending[id]
		if len(keys) == 0 {
			panic(fmt.Sprintf("thumbs: queued id %v has no pending requests", id))
		}
		// Any waiting key identifies the same document; pick one to hand
		// to the loader.
		var rep K
		for k := range keys {
			rep = k
			break
		}

		wasCached := c.store.Contains(id)
		c.running++
		c.opt.Metrics.Dispatched()
		go c.load(id, rep, wasCached)
	}
	c.opt.Metrics.Depth(len(c.queue), c.running)
}

// load runs on a worker goroutine: the expensive fetch and the pure
// scale happen without any shared state, then one short critical section
// publishes the outcome and lets the scheduler refill the freed slot.
func (c *cache[K, ID, V]) load(id ID, key K, wasCached bool) {
	start := time.Now()
	raw, err := c.opt.Load(c.loadCtx, key)
	var img V
	if err == nil {
		img = c.opt.Scale(raw, c.opt.TargetSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.pending[id]
	if !ok {
		// Cancel only removes queued ids, so a completing load must still
		// be pending. Anything else is a coordinator bug.
		panic(fmt.Sprintf("thumbs: load completed for id %v with no pending entry", id))
	}
	delete(c.pending, id)

	if err == nil {
		c.store.Set(id, img)
		c.markFreshLocked(id)
		for k := range keys {
			c.batch[k] = struct{}{}
		}
		c.signalFlusher()
		c.opt.Metrics.LoadOK(time.Since(start))
	} else {
		// A failed load is resolved, not retried. Park the placeholder
		// when nothing was cached so the id stops missing; keep a prior
		// image as-is. Nothing visible changed, so no notification.
		if !wasCached {
			c.store.Set(id, c.opt.Placeholder)
		}
		c.markFreshLocked(id)
		c.opt.Metrics.LoadFail(time.Since(start))
		if c.opt.Logger != nil {
			c.opt.Logger.Debug("thumbnail load failed", "key", key, "err", err)
		}
	}

	c.running--
	c.scheduleLocked()
}

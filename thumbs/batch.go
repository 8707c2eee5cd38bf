package thumbs

// flusher delivers ready batches on its own goroutine. Waking through a
// capacity-1 channel means any number of completions between two runs
// fold into one OnReady call. On shutdown it flushes whatever has
// accumulated and exits.
func (c *cache[K, ID, V]) flusher() {
	defer close(c.flusherDone)
	for {
		select {
		case <-c.stop:
			c.flushOnce()
			return
		case <-c.wake:
			c.flushOnce()
		}
	}
}

// flushOnce snapshots and clears the batch under the lock, then delivers
// it outside the lock so OnReady may call back into the cache. An empty
// batch delivers nothing.
func (c *cache[K, ID, V]) flushOnce() {
	c.mu.Lock()
	if len(c.batch) == 0 {
		c.mu.Unlock()
		return
	}
	keys := make([]K, 0, len(c.batch))
	for k := range c.batch {
		keys = append(keys, k)
	}
	clear(c.batch)
	c.mu.Unlock()

	c.opt.Metrics.Flushed(len(keys))
	if c.opt.OnReady != nil {
		c.opt.OnReady(keys)
	}
}

// signalFlusher wakes the flusher. A full wake channel means a run is
// already due; that run will pick this completion up too.
func (c *cache[K, ID, V]) signalFlusher() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

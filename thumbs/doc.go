// Package thumbs provides a bounded thumbnail cache with request
// coalescing, bounded load concurrency, and batched ready notifications.
// It is built for the "scrolling document browser" workload: a UI asks
// for thumbnails far faster than they can be loaded, items may be asked
// for under several aliases, and the consumer wants change notifications
// in digestible batches rather than one callback per item.
//
// Design
//
//   - Identity: every request key (a path, a URL) is mapped through an
//     injected Resolve function to a canonical id, so renames and aliases
//     of the same underlying document share one cache entry and one load.
//     An unresolvable key degrades to the placeholder image and leaves no
//     state behind.
//
//   - Store: resident thumbnails live in a bounded store (package store)
//     keyed by canonical id, LRU by default with a pluggable policy and an
//     optional byte budget. Eviction is silent; an evicted id misses on
//     the next request and simply reloads.
//
//   - Coordinator: a single mutex serializes the pending map, the FIFO
//     queue of ids awaiting dispatch, the running-load count, the
//     freshness markers, and the notification batch. Request takes the
//     lock briefly and never blocks on I/O.
//
//   - Scheduler: each enqueue or completion drains the queue to a fixed
//     point, dispatching loads while fewer than Workers are running.
//     Dispatch order is strict FIFO; completion order is not promised.
//
//   - Coalescing: a request for an id that is already queued or loading
//     piggy-backs on the in-flight load instead of starting another one.
//     When the load completes, every piggy-backed key lands in the same
//     ready batch.
//
//   - Batching: completions accumulate in a set that a dedicated flusher
//     goroutine delivers to OnReady. The flusher is woken through a
//     capacity-1 channel, so any number of completions between two wakes
//     collapse into a single callback. An empty flush delivers nothing.
//
//   - Failure: a failed load is resolved, not retried. If the id had no
//     prior image, the placeholder is parked under it so the store stops
//     reporting a miss; either way the id is marked fresh and no
//     notification is emitted. The only retry path is a new Request after
//     the id is dirtied (or after its freshness expires, see FreshFor).
//
// Basic usage
//
//	c := thumbs.New[string, DocID, image.Image](thumbs.Options[string, DocID, image.Image]{
//	    Resolve:     lookupDocID,
//	    Load:        readDocumentBytes,
//	    Scale:       decodeAndScale,
//	    Placeholder: placeholderImage,
//	    TargetSize:  thumbs.Size{Width: 220, Height: 270},
//	    OnReady: func(keys []string) {
//	        // refresh the rows showing these keys
//	    },
//	})
//	defer c.Close()
//
//	img := c.Request(path) // cached thumbnail, stale value, or placeholder
//
// Invalidation
//
//	c.MarkDirty(path)   // next Request serves the stale image and reloads
//	c.MarkAllDirty()    // same, for every id
//	c.Remove(path)      // the document is gone; drop its entry
//	c.Cancel(path)      // discard a not-yet-dispatched load (scrolled away)
//
// Thread-safety
//
// All methods are safe for concurrent use. Request is wait-free from the
// caller's point of view: it returns a cached image, a stale image, or
// the placeholder without waiting for any load. OnReady runs on the
// flusher goroutine and is never invoked concurrently with itself.
package thumbs

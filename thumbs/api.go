package thumbs

// Cache is the consumer-facing surface of the thumbnail cache.
// All methods are safe for concurrent use by multiple goroutines and
// none of them blocks on I/O.
type Cache[K comparable, V any] interface {
	// Request returns the best immediately available image for key: the
	// cached thumbnail when it is fresh, the stale cached thumbnail while
	// a reload is arranged, or the placeholder. Missing or stale entries
	// schedule a background load; concurrent requests for keys resolving
	// to the same id share one load.
	Request(key K) V

	// MarkDirty clears the freshness marker for the id key resolves to.
	// The next Request still returns the cached image immediately but
	// schedules a reload. No-op for unresolvable keys.
	MarkDirty(key K)

	// MarkAllDirty clears every freshness marker. Queued and running
	// loads are unaffected.
	MarkAllDirty()

	// Remove drops the cached entry for the id key resolves to, for
	// documents that no longer exist. An in-flight load for the id is not
	// cancelled and will repopulate the entry on completion.
	Remove(key K)

	// Cancel discards a load that is queued but not yet dispatched,
	// dropping every request key waiting on it. Once a load has been
	// handed to a worker, Cancel is a no-op.
	Cancel(key K)

	// Len returns the number of resident thumbnails.
	Len() int

	// Close stops the notification flusher, delivers any accumulated
	// batch, and cancels the context handed to in-flight loads. Further
	// Requests return the placeholder.
	Close() error
}

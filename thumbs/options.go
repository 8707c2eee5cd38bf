package thumbs

import (
	"context"
	"log/slog"
	"time"

	"github.com/macteo/thumbcache/policy"
	"github.com/macteo/thumbcache/store"
)

// Defaults applied by New when the corresponding option is zero.
const (
	// DefaultCapacity is the resident thumbnail limit.
	DefaultCapacity = 64
	// DefaultWorkers is the maximum number of concurrent loads.
	DefaultWorkers = 4
)

// Size is the target thumbnail size handed to Scale.
type Size struct {
	Width  int
	Height int
}

// Clock provides time in UnixNano; override it for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache. Resolve, Load, and Scale are required;
// everything else has a usable zero value.
type Options[K comparable, ID comparable, V any] struct {
	// Resolve maps a request key to the canonical id of the underlying
	// document, collapsing aliases onto one entry. Returning false means
	// "unidentifiable": the request degrades to the placeholder and
	// nothing is cached or tracked. Resolve runs on the caller's
	// goroutine, so it should be a cheap local lookup; wrap an expensive
	// one with identity.Cached.
	Resolve func(key K) (ID, bool)

	// Load fetches the raw image bytes for a request key. It is the
	// expensive operation the whole cache exists to bound; it runs on a
	// worker goroutine and may fail. The context is cancelled by Close.
	Load func(ctx context.Context, key K) ([]byte, error)

	// Scale turns raw bytes into a resident thumbnail. It must be a pure
	// function of its inputs; it runs on the worker goroutine.
	Scale func(raw []byte, size Size) V

	// TargetSize is passed through to Scale.
	TargetSize Size

	// Placeholder is returned whenever no better image exists. It is also
	// parked in the store for ids whose load failed with nothing cached.
	Placeholder V

	// OnReady receives the keys whose thumbnails became ready since the
	// previous flush, as one call per flush cycle. It runs on the flusher
	// goroutine and is never invoked concurrently with itself. Nil drops
	// notifications.
	OnReady func(keys []K)

	// Capacity is the resident entry limit (default DefaultCapacity).
	Capacity int

	// Workers bounds concurrent loads (default DefaultWorkers).
	Workers int

	// Store tuning, passed through to the underlying store.
	Shards  int
	Policy  policy.Policy[ID, V]
	Cost    func(v V) int
	MaxCost int64

	// OnEvict observes store evictions. It runs under a store shard lock;
	// keep it lightweight and do not call back into the cache.
	OnEvict func(id ID, v V, reason store.EvictReason)

	// FreshFor bounds how long a completed load counts as fresh. After it
	// elapses, the next Request serves the cached image and schedules a
	// background reload. Zero keeps entries fresh until explicitly
	// dirtied.
	FreshFor time.Duration

	// Clock overrides the time source for freshness deadlines (tests).
	Clock Clock

	// Metrics receives cache and store signals; nil means NoopMetrics.
	Metrics Metrics

	// Logger, when set, records load failures at debug level. The cache
	// never logs on the request path.
	Logger *slog.Logger
}

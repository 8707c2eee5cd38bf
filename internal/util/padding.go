package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is a reasonable default for current CPUs; the runtime's
// own constant is unexported.
const CacheLineSize = 64

// PaddedAtomicInt64 is an atomic int64 padded to a full cache line so
// that adjacent hot counters do not false-share.
type PaddedAtomicInt64 struct {
	atomic.Int64
	_ [CacheLineSize - 8]byte
}

// PaddedAtomicUint64 is the uint64 counterpart.
type PaddedAtomicUint64 struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// Compile-time size checks: each padded counter must be exactly one line.
var (
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicInt64{}))]byte
	_ [CacheLineSize - int(unsafe.Sizeof(PaddedAtomicUint64{}))]byte
)

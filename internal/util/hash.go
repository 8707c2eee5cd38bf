// Package util contains internal helpers (hashing, sharding, padding).
package util

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Hash64 hashes common identifier types with xxhash (64-bit).
// Supported: string, []byte, all int/uint widths, uintptr, fmt.Stringer.
// Panicking on unsupported types is deliberate: silently poor hashing
// would skew shard selection without any visible failure.
func Hash64[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return xxhash.Sum64String(v)
	case []byte:
		return xxhash.Sum64(v)

	case uint8:
		return hashUint64(uint64(v))
	case uint16:
		return hashUint64(uint64(v))
	case uint32:
		return hashUint64(uint64(v))
	case uint64:
		return hashUint64(v)
	case uint:
		return hashUint64(uint64(v))
	case uintptr:
		return hashUint64(uint64(v))
	case int8:
		return hashUint64(uint64(uint8(v)))
	case int16:
		return hashUint64(uint64(uint16(v)))
	case int32:
		return hashUint64(uint64(uint32(v)))
	case int64:
		return hashUint64(uint64(v))
	case int:
		return hashUint64(uint64(v))

	// Last resort for pseudo-keys via String(); prefer real key types.
	case fmt.Stringer:
		return xxhash.Sum64String(v.String())
	default:
		panic(fmt.Sprintf("util.Hash64: unsupported key type %T; convert the key to string", k))
	}
}

// hashUint64 hashes the 8 little-endian bytes of u without allocating.
func hashUint64(u uint64) uint64 {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(u)
		u >>= 8
	}
	return xxhash.Sum64(b[:])
}

// ClampInt32 clamps a non-negative int to the int32 range.
// Used for per-entry cost bookkeeping.
func ClampInt32(v int) int32 {
	if v < 0 {
		v = 0
	}
	if v > math.MaxInt32 {
		v = math.MaxInt32
	}
	return int32(v)
}

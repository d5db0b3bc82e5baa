// Package durability provides the platform-facing half of the persistence
// protocol described in spec.md §9: an abstract flush/drain "durability
// barrier", a memory-mapped region file standing in for NVMM, and an
// optional external witness used to observe publications from outside the
// process.
//
// None of this package implements combining logic; it is the thin layer
// the engines call into at the points spec.md §4.3/§4.4 mark "flush the
// new record", "drain", and "flush S".
package durability

import "errors"

// errUnsupportedPlatform is returned by the non-unix mapFile stub so
// OpenRegion falls back to the buffered fileSyncBarrier path.
var errUnsupportedPlatform = errors.New("durability: memory-mapped regions are not supported on this platform")

// Barrier is the abstract durability primitive: flush writes back the
// cache lines covering [off, off+n) of the region to the backing medium;
// drain blocks until every flush issued so far has completed and is
// globally visible. On a volatile backend both are no-ops; on the NVMM
// backend flush is a cache-line writeback and drain is a store fence.
type Barrier interface {
	Flush(off, n int64) error
	Drain() error
}

// Dummy is a Barrier that does nothing. It backs
// Config.DisableFlush, spec.md §6's "another disables flush/drain as
// dummy for performance studies" — used for throughput experiments where
// the cost of real persistence should not be measured, and for fast unit
// tests of combining logic that don't care about the durability side.
type Dummy struct{}

func (Dummy) Flush(int64, int64) error { return nil }
func (Dummy) Drain() error             { return nil }

// Package tracker implements the per-thread lock-free event pipeline
// (components C and D of the arena): a bounded SPSC ring of allocation
// events per owning goroutine, and the LocalTracker façade that samples,
// builds, and pushes events into it. Grounded on
// original_source/src/tracker/tracker.hpp's RingBuffer<T,N> and LocalTracker,
// ported from C++ std::atomic to Go's sync/atomic and from a template
// parameter N to a fixed capacity constant.
package tracker

import "github.com/arenalab/memarena/allocator"

// EventType distinguishes an allocation from a deallocation event.
type EventType uint8

const (
	EventAllocate EventType = iota
	EventDeallocate
)

func (t EventType) String() string {
	switch t {
	case EventAllocate:
		return "allocate"
	case EventDeallocate:
		return "deallocate"
	default:
		return "unknown"
	}
}

// AllocationEvent is one recorded allocation or deallocation, carrying the
// block metadata plus the shard-wide aggregate counters observed at the
// moment of recording (spec.md §3's AllocationEvent).
type AllocationEvent struct {
	Type             EventType
	Block            allocator.BlockMetadata
	EventID          uint64
	TotalAllocated   int64
	TotalFree        int64
	FragmentationPct int
	FreeBlockCount   int
}

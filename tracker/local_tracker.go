package tracker

import (
	"sync/atomic"

	"github.com/arenalab/memarena/allocator"
)

// ShardStats is the read-only slice of a Shard's counters a LocalTracker
// needs to annotate events with aggregate state, per spec.md §4.4 step 3.
// It is an interface rather than a direct *allocator.Shard dependency so
// tests can exercise LocalTracker's sampling and dropped-event behavior
// without standing up a real shard.
type ShardStats interface {
	BytesAllocated() int64
	BytesFree() int64
	FreeBlockCount() int
	FragmentationPct() int
}

// LocalTracker is the per-thread façade that samples allocation events and
// pushes them into its EventRing (component D). One LocalTracker is bound
// to exactly one shard and one owning goroutine; its Ring is drained only
// by the Aggregator.
type LocalTracker struct {
	ID       uint64
	shard    ShardStats
	ring     *EventRing
	sampling uint64
	counter  atomic.Uint64
}

// NewLocalTracker constructs a tracker bound to shard, sampling 1-in-s
// events (s < 1 is treated as 1, meaning every event surfaces).
func NewLocalTracker(id uint64, shard ShardStats, sampling uint64) *LocalTracker {
	if sampling < 1 {
		sampling = 1
	}
	return &LocalTracker{
		ID:       id,
		shard:    shard,
		ring:     NewEventRing(),
		sampling: sampling,
	}
}

// Ring exposes the tracker's EventRing for the Aggregator's drain loop.
func (t *LocalTracker) Ring() *EventRing {
	return t.ring
}

// RecordAlloc builds and (subject to sampling) pushes an Allocate event for
// a just-completed allocation.
func (t *LocalTracker) RecordAlloc(block allocator.BlockMetadata) {
	t.record(EventAllocate, block)
}

// RecordDealloc builds and (subject to sampling) pushes a Deallocate event.
// Unlike the original's C++ rendition (which only carries offset/size for
// a dealloc), this keeps the full BlockMetadata the caller already has on
// hand — cheaper than reconstructing a partial one, and it lets reports
// treat Allocate/Deallocate events uniformly.
func (t *LocalTracker) RecordDealloc(block allocator.BlockMetadata) {
	t.record(EventDeallocate, block)
}

func (t *LocalTracker) record(kind EventType, block allocator.BlockMetadata) {
	id := t.counter.Add(1)
	if id%t.sampling != 0 {
		return
	}

	event := AllocationEvent{
		Type:             kind,
		Block:            block,
		EventID:          id,
		TotalAllocated:   t.shard.BytesAllocated(),
		TotalFree:        t.shard.BytesFree(),
		FragmentationPct: t.shard.FragmentationPct(),
		FreeBlockCount:   t.shard.FreeBlockCount(),
	}
	t.ring.TryPush(event)
}

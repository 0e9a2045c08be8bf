package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arenalab/memarena/allocator"
)

type fakeShardStats struct {
	allocated int64
	free      int64
	blocks    int
	fragPct   int
}

func (f *fakeShardStats) BytesAllocated() int64 { return f.allocated }
func (f *fakeShardStats) BytesFree() int64      { return f.free }
func (f *fakeShardStats) FreeBlockCount() int   { return f.blocks }
func (f *fakeShardStats) FragmentationPct() int { return f.fragPct }

func TestLocalTrackerRecordsEveryEventWhenSamplingIsOne(t *testing.T) {
	stats := &fakeShardStats{allocated: 100, free: 900, blocks: 3, fragPct: 10}
	lt := NewLocalTracker(1, stats, 1)

	for i := 0; i < 5; i++ {
		lt.RecordAlloc(allocator.BlockMetadata{Offset: i * 16, ActualSize: 16})
	}

	var drained []AllocationEvent
	n := lt.Ring().DrainInto(&drained)
	require.Equal(t, 5, n)
	for i, e := range drained {
		require.Equal(t, EventAllocate, e.Type, "event %d", i)
		require.Equal(t, int64(100), e.TotalAllocated, "event %d", i)
		require.Equal(t, int64(900), e.TotalFree, "event %d", i)
		require.Equal(t, 3, e.FreeBlockCount, "event %d", i)
	}
}

func TestLocalTrackerSamplingDropsEvents(t *testing.T) {
	stats := &fakeShardStats{}
	lt := NewLocalTracker(2, stats, 4)

	for i := 0; i < 16; i++ {
		lt.RecordAlloc(allocator.BlockMetadata{Offset: i})
	}

	var drained []AllocationEvent
	n := lt.Ring().DrainInto(&drained)
	require.Equal(t, 4, n, "sampling=4 over 16 calls")
	for _, e := range drained {
		require.Zero(t, e.EventID%4, "sampled event id %d is not a multiple of 4", e.EventID)
	}
}

func TestLocalTrackerSamplingBelowOneTreatedAsOne(t *testing.T) {
	stats := &fakeShardStats{}
	lt := NewLocalTracker(3, stats, 0)

	lt.RecordAlloc(allocator.BlockMetadata{})
	lt.RecordDealloc(allocator.BlockMetadata{})

	var drained []AllocationEvent
	n := lt.Ring().DrainInto(&drained)
	require.Equal(t, 2, n)
	require.Equal(t, EventAllocate, drained[0].Type)
	require.Equal(t, EventDeallocate, drained[1].Type)
}

package report

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arenalab/memarena/allocator"
)

func TestComputeCacheReportSplitAllocationScenario(t *testing.T) {
	// spec scenario: line_size=64, one 96-byte allocation at offset 32.
	blocks := []allocator.BlockMetadata{
		{Offset: 32, ActualSize: 96, Tag: "x"},
	}
	r := ComputeCacheReport(blocks, 4096, 64)

	require.Equal(t, 1, r.SplitAllocations)
	require.Equal(t, 2, r.ActiveLines)

	byIndex := map[int]CacheLine{}
	for _, l := range r.Lines {
		byIndex[l.LineIndex] = l
	}
	require.Equal(t, 32, byIndex[0].BytesUsed)
	require.Equal(t, 64, byIndex[1].BytesUsed)
	require.True(t, byIndex[0].IsSplit && byIndex[1].IsSplit, "both lines touched by the split allocation should be marked split")
}

func TestComputeCacheReportInvalidLineSizeFallsBackTo64(t *testing.T) {
	require.Equal(t, defaultLineSize, NormalizeLineSize(0))
	require.Equal(t, defaultLineSize, NormalizeLineSize(100), "100 is not a power of two")
	require.Equal(t, 128, NormalizeLineSize(128))
}

func TestComputeCacheReportFullyUtilizedLine(t *testing.T) {
	blocks := []allocator.BlockMetadata{
		{Offset: 0, ActualSize: 64, Tag: "full"},
	}
	r := ComputeCacheReport(blocks, 4096, 64)
	require.Equal(t, 1, r.FullyUtilized)
	require.Equal(t, 1.0, r.Lines[0].Utilization)
}

func TestComputeCacheReportEmptyBlocksOrCapacity(t *testing.T) {
	r := ComputeCacheReport(nil, 4096, 64)
	require.Zero(t, r.ActiveLines)
	require.Equal(t, 64, r.TotalLines)

	r2 := ComputeCacheReport([]allocator.BlockMetadata{{Offset: 0, ActualSize: 16}}, 0, 64)
	require.Zero(t, r2.TotalLines, "zero capacity")
}

func TestComputeCacheReportDominantTag(t *testing.T) {
	blocks := []allocator.BlockMetadata{
		{Offset: 0, ActualSize: 16, Tag: "small"},
		{Offset: 16, ActualSize: 48, Tag: "big"},
	}
	r := ComputeCacheReport(blocks, 4096, 64)
	require.Len(t, r.Lines, 1)
	require.Equal(t, "big", r.Lines[0].DominantTag)
}

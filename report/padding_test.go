package report

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arenalab/memarena/allocator"
)

func TestComputePaddingReportAggregatesCorrectly(t *testing.T) {
	blocks := []allocator.BlockMetadata{
		{Offset: 0, RequestedSize: 100, ActualSize: 128, Tag: "a"},
		{Offset: 128, RequestedSize: 50, ActualSize: 64, Tag: "a"},
		{Offset: 192, RequestedSize: 200, ActualSize: 200, Tag: "b"},
	}

	r := ComputePaddingReport(blocks)

	require.Equal(t, 350, r.TotalRequested)
	require.Equal(t, 392, r.TotalActual)
	require.Equal(t, 42, r.TotalWasted)
	require.InDelta(t, 350.0/392.0, r.Efficiency, 1e-9)

	agg, ok := r.ByTag["a"]
	require.True(t, ok, "missing ByTag entry for tag a")
	require.Equal(t, 2, agg.Count)
	require.Equal(t, 28+14, agg.TotalPadding)
}

func TestComputePaddingReportHandlesEmptySnapshot(t *testing.T) {
	r := ComputePaddingReport(nil)
	require.Zero(t, r.TotalActual)
	require.Zero(t, r.Efficiency)
}

func TestPaddingJSONRoundTripsShape(t *testing.T) {
	blocks := []allocator.BlockMetadata{{Offset: 0, RequestedSize: 10, ActualSize: 16, Tag: "x"}}
	r := ComputePaddingReport(blocks)
	b, err := PaddingJSON(r)
	require.NoError(t, err)
	require.NotEmpty(t, b)
}

package report

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeLayoutReportComputesGapsAndTailPadding(t *testing.T) {
	// Mirrors a struct like:
	//   struct { a int8; _ [7]byte; b int64; c int8 }
	// total size 24 (padded to 8-byte alignment).
	fields := []FieldInput{
		{Name: "a", Offset: 0, Size: 1, Alignment: 1},
		{Name: "b", Offset: 8, Size: 8, Alignment: 8},
		{Name: "c", Offset: 16, Size: 1, Alignment: 1},
	}
	r := ComputeLayoutReport("Example", 24, 8, fields)

	require.Zero(t, r.Fields[0].PaddingBefore)
	require.Equal(t, 7, r.Fields[1].PaddingBefore)
	require.Zero(t, r.Fields[2].PaddingBefore)
	require.Equal(t, 10, r.UsefulBytes)
	require.Equal(t, 7, r.TailPadding)
	require.Equal(t, 14, r.PaddingBytes)
	require.InDelta(t, 10.0/24.0, r.Efficiency, 1e-9)
}

func TestComputeLayoutReportZeroSizeType(t *testing.T) {
	r := ComputeLayoutReport("Empty", 0, 1, nil)
	require.Zero(t, r.Efficiency, "zero-size type")
}

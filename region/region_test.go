package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireRoundsUpToPageSize(t *testing.T) {
	r, err := Acquire(1)
	require.NoError(t, err)
	defer r.Release()

	require.Greater(t, r.Capacity(), 0)
	require.Len(t, r.Bytes(), r.Capacity())
}

func TestAcquireZeroCapacityFails(t *testing.T) {
	_, err := Acquire(0)
	require.Error(t, err)
}

func TestAcquireNegativeCapacityFails(t *testing.T) {
	_, err := Acquire(-1)
	require.Error(t, err)
}

func TestRegionIsZeroed(t *testing.T) {
	r, err := Acquire(4096)
	require.NoError(t, err)
	defer r.Release()

	for i, b := range r.Bytes() {
		require.Zerof(t, b, "byte %d must be zero (OS mapping must be zero-initialized)", i)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	r, err := Acquire(4096)
	require.NoError(t, err)
	require.NoError(t, r.Release(), "first Release")
	require.NoError(t, r.Release(), "second Release")
}

func TestAcquireCapacityAtLeastRequested(t *testing.T) {
	const want = 10 * 4096
	r, err := Acquire(want)
	require.NoError(t, err)
	defer r.Release()

	require.GreaterOrEqual(t, r.Capacity(), want)
}

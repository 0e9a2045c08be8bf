// Package region owns the single contiguous, page-aligned anonymous mapping
// that backs an instrumented arena. It is the "component A" of the arena:
// everything else carves its bytes out of the slice a Region hands back.
package region

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// ErrInvalidArgument is returned by Acquire when the requested capacity is
// zero or negative.
var ErrInvalidArgument = errors.New("region: requested capacity must be > 0")

// ErrSystemError wraps a failure of the underlying mmap/munmap syscalls.
var ErrSystemError = errors.New("region: system call failed")

// Region owns one contiguous, page-aligned, read/write anonymous mapping.
// The mapping is released when Release is called; a Region must not be used
// afterwards.
type Region struct {
	data     []byte
	capacity int
	released bool
}

// Acquire maps a new anonymous, zero-initialized region of at least
// requestedCapacity bytes. The actual capacity is rounded up to a multiple
// of the system page size (never down) and reported back via Capacity.
func Acquire(requestedCapacity int) (*Region, error) {
	if requestedCapacity <= 0 {
		return nil, errors.WithStack(ErrInvalidArgument)
	}

	pageSize := unix.Getpagesize()
	capacity := roundUpToPage(requestedCapacity, pageSize)

	data, err := unix.Mmap(-1, 0, capacity,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(ErrSystemError, "mmap(%d bytes): %v", capacity, err)
	}

	return &Region{data: data, capacity: capacity}, nil
}

// Bytes returns the full backing slice for the region. Callers that carve
// shards out of the region should take subslices of this rather than
// holding onto raw pointers across a Release.
func (r *Region) Bytes() []byte {
	return r.data
}

// Capacity returns the actual mapped capacity in bytes, a multiple of the
// system page size and always >= the capacity requested at Acquire time.
func (r *Region) Capacity() int {
	return r.capacity
}

// Release unmaps the region. Subsequent use of slices previously obtained
// from Bytes is undefined behavior, matching the spec's "no compaction, no
// persistence, unmap on drop" lifecycle.
func (r *Region) Release() error {
	if r.released {
		return nil
	}
	r.released = true
	if err := unix.Munmap(r.data); err != nil {
		return errors.Wrapf(ErrSystemError, "munmap: %v", err)
	}
	r.data = nil
	return nil
}

func roundUpToPage(n, pageSize int) int {
	if pageSize <= 0 {
		pageSize = 4096
	}
	rem := n % pageSize
	if rem == 0 {
		return n
	}
	return n + (pageSize - rem)
}

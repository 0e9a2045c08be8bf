package allocator

import "unsafe"

// allocationHeader sits immediately before the user's payload pointer of
// every live (allocated) block — any alignment pre-padding a request needed
// lands ahead of the header, not between the header and the payload. It
// lets Deallocate cross-check the size recorded in the block itself against
// the size the live-block registry holds for that offset, rejecting a
// corrupted or overwritten header as a BadPointer — the "prefer the header
// approach" resolution of the spec's open question on per-allocation
// headers.
type allocationHeader struct {
	magic      uint32
	actualSize uint32
	_          uint64 // pads the header to a 16-byte (Quantum) multiple
}

const headerMagic uint32 = 0x4D454D41 // ASCII "MEMA"

// headerSize is always Quantum-aligned (16 bytes), so placing it directly
// before a Quantum-aligned payload pointer never by itself misaligns the
// header's own start.
var headerSize = int64(unsafe.Sizeof(allocationHeader{}))

func writeHeader(ptr unsafe.Pointer, actualSize int64) {
	h := (*allocationHeader)(ptr)
	h.magic = headerMagic
	h.actualSize = uint32(actualSize)
}

func readHeader(ptr unsafe.Pointer) (actualSize int64, ok bool) {
	h := (*allocationHeader)(ptr)
	if h.magic != headerMagic {
		return 0, false
	}
	return int64(h.actualSize), true
}

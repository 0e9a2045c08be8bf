// Package allocator implements the sharded, address-ordered, red-black-tree
// free-list allocator: one FreeListAllocator ("Shard") per carve of the
// backing region, with segregated small-class fast paths, splitting, and
// coalescing. It is the hardest and largest component of the arena (spec
// §2, component B), grounded on the general shape of
// github.com/vkngwrapper/arsenal's memutils/metadata block-metadata
// implementations (BlockMetadata-style statistics and validation, a
// handle/offset registry modeled on tlsf.go's handleKey) adapted from a
// TLSF segregated-fit algorithm to an address-ordered augmented tree, since
// that is what the spec requires instead.
package allocator

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
)

// Shard is one carve of the backing region served by its own free-list
// allocator and mutex. All operations on a Shard hold its mutex
// exclusively; there is no inter-shard lock.
type Shard struct {
	mu  sync.Mutex
	buf []byte

	// usable is the Quantum-aligned prefix of buf that is actually tracked
	// by the free structures; any trailing remainder (len(buf)%Quantum
	// bytes) is permanently unreachable, matching the tree's invariant that
	// every block boundary is Quantum-aligned.
	usable int64

	sentinel blockHeader // never placed in-region; stands in for "no child"

	root       int64
	smallHeads [SmallClassCount]int64

	allocated      int64
	freeBlockCount int

	live *swiss.Map[int64, *BlockMetadata]
}

// NewShard initializes a shard over buf with one free block spanning the
// whole slice, inserted as the tree's black root.
func NewShard(buf []byte) *Shard {
	s := &Shard{
		buf:      buf,
		sentinel: blockHeader{color: black, parent: nilOffset, left: nilOffset, right: nilOffset},
		root:     nilOffset,
	}
	for i := range s.smallHeads {
		s.smallHeads[i] = nilOffset
	}
	s.live = swiss.NewMap[int64, *BlockMetadata](64)

	usable := int64(len(buf))
	usable -= usable % Quantum // keep every block boundary Quantum-aligned
	s.usable = usable
	if usable > 0 {
		s.insertFree(0, usable)
	}
	return s
}

func (s *Shard) ptrAt(off int64) unsafe.Pointer {
	return unsafe.Pointer(&s.buf[off])
}

func (s *Shard) nodeAt(off int64) *blockHeader {
	if off == nilOffset {
		return &s.sentinel
	}
	return (*blockHeader)(unsafe.Pointer(&s.buf[off]))
}

// Capacity returns the shard's tracked byte span (the Quantum-aligned
// prefix of the backing slice).
func (s *Shard) Capacity() int64 {
	return s.usable
}

// BytesAllocated returns the shard's current live-allocation byte total.
func (s *Shard) BytesAllocated() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocated
}

// BytesFree returns capacity - BytesAllocated, derived rather than tracked
// independently so the two can never drift out of sync.
func (s *Shard) BytesFree() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Capacity() - s.allocated
}

// FreeBlockCount returns the number of distinct free regions (tree nodes
// plus small-class list entries).
func (s *Shard) FreeBlockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freeBlockCount
}

// LargestFreeBlock returns the size of the single largest contiguous free
// block, in O(1) via the root's subtree_max. Small-class fragments are
// excluded, same as the spec's definition — they're never merged into
// larger contiguous spans.
func (s *Shard) LargestFreeBlock() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.largestFreeBlockLocked()
}

func (s *Shard) largestFreeBlockLocked() int64 {
	if s.root == nilOffset {
		return 0
	}
	return s.nodeAt(s.root).subtreeMax
}

// FragmentationPct is floor(100 * (1 - largest_free/total_free)), or 0 when
// total_free is 0.
func (s *Shard) FragmentationPct() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragmentationPctLocked()
}

func (s *Shard) fragmentationPctLocked() int {
	totalFree := s.Capacity() - s.allocated
	if totalFree <= 0 {
		return 0
	}
	largest := s.largestFreeBlockLocked()
	return int(100 * (1 - float64(largest)/float64(totalFree)))
}

// Allocate reserves a block of at least reqSize bytes aligned to alignment.
// A reqSize of 0 is promoted to 1. alignment must be a power of two.
func (s *Shard) Allocate(reqSize, alignment int, tag string) (ptr unsafe.Pointer, offset int64, actualSize int64, err error) {
	if reqSize <= 0 {
		reqSize = 1
	}
	if !isPowerOfTwo(alignment) {
		return nil, 0, 0, errors.WithStack(ErrInvalidAlignment)
	}

	internalAlign := int64(alignment)
	if internalAlign < Quantum {
		internalAlign = Quantum
	}
	roundedSize := roundUpQuantum(int64(reqSize))
	trueMin := headerSize + roundedSize

	s.mu.Lock()
	defer s.mu.Unlock()

	if internalAlign == Quantum {
		if class := smallestClassFitting(trueMin); class > 0 {
			if off := s.popSmall(class); off != nilOffset {
				// A small-class block is never split: its whole classSize(class)
				// footprint becomes actualSize, even though that may exceed
				// headerSize+roundedSize — the slack a pushSmall block carries is
				// the price of its O(1) fast path, not a leak to file back.
				ptr, userOff, actual, err := s.commit(off, off+headerSize, classSize(class), reqSize, alignment, tag)
				s.debugValidate()
				return ptr, userOff, actual, err
			}
		}
	}

	conservativeNeed := trueMin
	if internalAlign > Quantum {
		conservativeNeed += internalAlign - Quantum
	}

	candidate := s.firstFit(conservativeNeed)
	if candidate == nilOffset {
		for off := s.firstFit(trueMin); off != nilOffset; off = s.successor(off) {
			if _, ok := s.placement(off, s.nodeAt(off).size, internalAlign, roundedSize); ok {
				candidate = off
				break
			}
		}
	}
	if candidate == nilOffset {
		return nil, 0, 0, errors.WithStack(ErrOutOfMemory)
	}

	blockSize := s.nodeAt(candidate).size
	userOff, ok := s.placement(candidate, blockSize, internalAlign, roundedSize)
	if !ok {
		corruption("first-fit candidate at offset %d (size %d) cannot satisfy alignment %d for %d bytes", candidate, blockSize, alignment, roundedSize)
	}

	s.removeFree(candidate)

	// The header sits immediately before the aligned payload, not at the
	// block's start, so any gap ahead of it is genuine pre-padding rather
	// than header overhead. Quantum-aligned candidate + Quantum-multiple
	// internalAlign means this gap is always exactly 0 or a multiple of
	// Quantum, i.e. it is always filable rather than needing the sub-Quantum
	// absorb fallback.
	headerOff := userOff - headerSize
	if preGap := headerOff - candidate; preGap > 0 {
		s.fileFree(candidate, preGap)
	}

	reservedEnd := userOff + roundedSize
	blockEnd := candidate + blockSize
	if tail := blockEnd - reservedEnd; tail > 0 {
		s.fileFree(reservedEnd, tail)
	}

	// Both the pre-gap and the tail have been filed back above, so the
	// block actually backing this allocation is exactly [headerOff,
	// reservedEnd) — header plus payload, no slack.
	ptr, userOff2, actual, err2 := s.commit(headerOff, userOff, reservedEnd-headerOff, reqSize, alignment, tag)
	s.debugValidate()
	return ptr, userOff2, actual, err2
}

// placement computes where the user pointer would land for a candidate
// block of blockSize bytes starting at blockOff, assuming a header is
// placed directly before it. ok is false if the block is too small once the
// header and any alignment padding are accounted for.
func (s *Shard) placement(blockOff, blockSize, internalAlign, roundedSize int64) (userOff int64, ok bool) {
	rawUserOff := blockOff + headerSize
	userOff = alignUp(rawUserOff, internalAlign)
	if userOff+roundedSize > blockOff+blockSize {
		return 0, false
	}
	return userOff, true
}

// commit writes the allocation header at headerOff, immediately before the
// payload at userOff, and registers the block's metadata. actualSize is the
// full physical span the header now owns, [headerOff, headerOff+actualSize);
// any gap between a candidate block's start and headerOff is the caller's
// responsibility to file back into the free structures before calling commit.
func (s *Shard) commit(headerOff, userOff, actualSize int64, reqSize, alignment int, tag string) (unsafe.Pointer, int64, int64, error) {
	writeHeader(s.ptrAt(headerOff), actualSize)
	s.allocated += actualSize

	meta := &BlockMetadata{
		Offset:        int(userOff),
		BlockOffset:   int(headerOff),
		RequestedSize: reqSize,
		Alignment:     alignment,
		ActualSize:    int(actualSize),
		Tag:           SanitizeTag(tag),
		TimestampUS:   nowMicros(),
	}
	s.live.Put(userOff, meta)

	return s.ptrAt(userOff), userOff, actualSize, nil
}

// Deallocate releases the block whose payload pointer sits at userOffset.
// userOffset must lie within the shard and be Quantum-aligned; the caller
// is responsible for translating a null pointer into a no-op before
// reaching here (the shard has no concept of "null").
func (s *Shard) Deallocate(userOffset int64) error {
	if userOffset < 0 || userOffset >= s.usable || userOffset%Quantum != 0 {
		return errors.WithStack(ErrBadPointer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.live.Get(userOffset)
	if !ok {
		return errors.WithStack(ErrBadPointer)
	}
	headerOff := int64(meta.BlockOffset)
	actualSize, valid := readHeader(s.ptrAt(headerOff))
	if !valid || actualSize != int64(meta.ActualSize) {
		return errors.WithStack(ErrBadPointer)
	}

	s.live.Delete(userOffset)
	s.allocated -= actualSize

	if class := classForSize(actualSize); class > 0 {
		s.pushSmall(class, headerOff)
		s.debugValidate()
		return nil
	}
	s.coalesceFree(headerOff, actualSize)
	s.debugValidate()
	return nil
}

// coalesceFree inserts a freed tree-managed block and merges it with an
// adjacent successor, then an adjacent predecessor, in that order — the
// order the spec requires so the upward augmentation fix stays correct.
func (s *Shard) coalesceFree(off, size int64) {
	s.insertFree(off, size)

	if succ := s.successor(off); succ != nilOffset {
		succNode := s.nodeAt(succ)
		if succ == off+size {
			mergedSize := s.nodeAt(off).size + succNode.size
			s.removeFree(succ)
			s.nodeAt(off).size = mergedSize
			s.refreshSubtreeMaxUpward(off)
			size = mergedSize
		}
	}

	if pred := s.predecessor(off); pred != nilOffset {
		predNode := s.nodeAt(pred)
		if pred+predNode.size == off {
			mergedSize := predNode.size + s.nodeAt(off).size
			s.removeFree(off)
			s.nodeAt(pred).size = mergedSize
			s.refreshSubtreeMaxUpward(pred)
		}
	}
}

// Lookup returns the metadata for the live block at userOffset, if any.
// Used by dealloc_raw to recover the tag/size needed for its dealloc event
// without a full VisitLive scan.
func (s *Shard) Lookup(userOffset int64) (BlockMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.live.Get(userOffset)
	if !ok {
		return BlockMetadata{}, false
	}
	return *meta, true
}

// VisitLive calls fn once for every currently-live block's metadata. Order
// is unspecified. Used by the reports and by snapshot_json to build a
// consistent point-in-time view while the shard's mutex is held.
func (s *Shard) VisitLive(fn func(BlockMetadata)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Iter(func(_ int64, meta *BlockMetadata) bool {
		fn(*meta)
		return false
	})
}

// Lock and Unlock expose the shard mutex directly so callers that must
// acquire every shard's lock in a fixed order (snapshot_json, per spec §5)
// can do so without reaching into unexported fields. Callers holding the
// lock this way must use the *Locked accessors below instead of the
// regular exported accessors, which take the lock themselves.
func (s *Shard) Lock()   { s.mu.Lock() }
func (s *Shard) Unlock() { s.mu.Unlock() }

// CapacityLocked, BytesAllocatedLocked, FreeBlockCountLocked, and
// LargestFreeBlockLocked mirror their unlocked counterparts but assume the
// caller already holds the shard's mutex via Lock(), for use by
// snapshot_json's fixed-order multi-shard scan (spec.md §5).
func (s *Shard) CapacityLocked() int64          { return s.Capacity() }
func (s *Shard) BytesAllocatedLocked() int64    { return s.allocated }
func (s *Shard) FreeBlockCountLocked() int      { return s.freeBlockCount }
func (s *Shard) LargestFreeBlockLocked() int64  { return s.largestFreeBlockLocked() }

// VisitLiveLocked mirrors VisitLive but assumes the caller already holds
// the shard's mutex via Lock().
func (s *Shard) VisitLiveLocked(fn func(BlockMetadata)) {
	s.live.Iter(func(_ int64, meta *BlockMetadata) bool {
		fn(*meta)
		return false
	})
}

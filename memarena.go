// Package memarena binds a Region, a fixed set of allocator Shards, and an
// Aggregator into the single consumer-facing type: Arena. It plays the same
// role the teacher's vam.Allocator plays over memutils/vam's block lists —
// one root type that owns the pieces and exposes the operations a caller
// actually needs, while the packages underneath stay decomposed by concern.
package memarena

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/arenalab/memarena/aggregator"
	"github.com/arenalab/memarena/allocator"
	"github.com/arenalab/memarena/region"
	"github.com/arenalab/memarena/report"
	"github.com/arenalab/memarena/tracker"
)

// Sentinel errors returned at the arena's public boundary. Every returned
// error satisfies errors.Is against one of these via cockroachdb/errors.Wrap.
var (
	ErrInvalidArgument  = errors.New("memarena: invalid argument")
	ErrSystemError      = errors.New("memarena: system error")
	ErrInvalidAlignment = errors.New("memarena: alignment is not a power of two")
	ErrOutOfMemory      = errors.New("memarena: shard exhausted")
	ErrBadPointer       = errors.New("memarena: pointer not owned by this shard")
)

const defaultShardCount = 256

// Config enumerates the parameters needed to construct an Arena, matching
// spec.md §6's configuration schema exactly plus a Logger seam for the
// ambient stack.
type Config struct {
	// ArenaSize is the total byte capacity requested from the OS, rounded up
	// to a page multiple by region.Acquire.
	ArenaSize int

	// CacheLineSize is the line width used by CacheReport; 0, or any value
	// that is not a power of two, selects 64 bytes (see
	// report.NormalizeLineSize). The line size is not detected from the OS.
	CacheLineSize int

	// EnableSink, when true, starts the aggregator's tick loop and forwards
	// drained batches to Sink. When false the arena still records events
	// into LocalTrackers' rings, but nothing drains them: SnapshotJSON reads
	// the shards directly and EventLogJSON returns an empty array.
	EnableSink bool

	// Sink receives broadcast batches when EnableSink is true. A nil Sink
	// with EnableSink true is equivalent to a sink that discards everything
	// it receives; the tick loop still runs so EventLogJSON stays current.
	Sink aggregator.EventSink

	// Sampling is the 1-in-s event sampling factor shared by every
	// LocalTracker the arena creates; s < 1 is treated as 1.
	Sampling uint64

	// ShardCount is the number of independent shards the region is carved
	// into; 0 selects the spec's default of 256.
	ShardCount int

	// Logger receives structured diagnostics from the aggregator's tick
	// loop. A nil Logger installs a discard logger.
	Logger *slog.Logger
}

// Arena is the sharded, instrumented allocator a consumer actually holds.
// It owns a Region, a fixed slice of allocator.Shards carved contiguously
// out of the region's bytes, and an Aggregator draining every LocalTracker
// registered against it.
type Arena struct {
	region *region.Region
	shards []*allocator.Shard

	shardCapacity  int
	usableCapacity int64 // shardCapacity * len(shards); excludes any unsharded remainder tail
	cacheLineSize  int

	agg *aggregator.Aggregator

	nextTrackerID atomic.Uint64
	sampling      uint64
}

// New acquires a region of cfg.ArenaSize bytes, carves it into cfg.ShardCount
// equal shards, and starts the aggregator's tick loop when cfg.EnableSink is
// set. The returned Arena owns the region; Close releases it.
func New(cfg Config) (*Arena, error) {
	if cfg.ArenaSize <= 0 {
		return nil, errors.WithStack(ErrInvalidArgument)
	}
	shardCount := cfg.ShardCount
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}

	reg, err := region.Acquire(cfg.ArenaSize)
	if err != nil {
		if errors.Is(err, region.ErrInvalidArgument) {
			return nil, errors.Wrap(ErrInvalidArgument, err.Error())
		}
		return nil, errors.Wrap(ErrSystemError, err.Error())
	}

	buf := reg.Bytes()
	shardCapacity := len(buf) / shardCount
	if shardCapacity <= 0 {
		_ = reg.Release()
		return nil, errors.Wrapf(ErrInvalidArgument, "arena_size %d too small for %d shards", cfg.ArenaSize, shardCount)
	}

	// Every shard, including the last, is exactly shardCapacity bytes, so a
	// pointer's owning shard is always recoverable in O(1) as
	// offset/shardCapacity. Any remainder from len(buf) not dividing evenly
	// by shardCount is a fixed, permanently unused tail past the last
	// shard's end rather than folded into it — the arena never allocates
	// there, so it never needs to be located by a live pointer.
	shards := make([]*allocator.Shard, shardCount)
	for i := 0; i < shardCount; i++ {
		start := i * shardCapacity
		shards[i] = allocator.NewShard(buf[start : start+shardCapacity])
	}

	sampling := cfg.Sampling
	if sampling < 1 {
		sampling = 1
	}

	a := &Arena{
		region:         reg,
		shards:         shards,
		shardCapacity:  shardCapacity,
		usableCapacity: int64(shardCapacity) * int64(shardCount),
		cacheLineSize:  report.NormalizeLineSize(cfg.CacheLineSize),
		agg:            aggregator.New(shards, cfg.Sink, cfg.Logger),
		sampling:       sampling,
	}
	if cfg.EnableSink {
		a.agg.Start()
	}
	return a, nil
}

// Close stops the aggregator's tick loop (if running) and releases the
// arena's backing mapping. The Arena must not be used afterwards.
func (a *Arena) Close() error {
	a.agg.Stop()
	return a.region.Release()
}

// NewTracker registers a fresh LocalTracker bound to the shard whose index
// is the tracker's id modulo the shard count, matching spec.md
// §4.6's "allocation is shard-local" thread-binding scheme: callers pin one
// tracker per OS thread and reuse it for every alloc/dealloc that thread
// issues. The returned release func must be called when the owning thread
// retires, so the aggregator can prune the handle instead of draining a ring
// nobody appends to again.
func (a *Arena) NewTracker() (t *tracker.LocalTracker, release func()) {
	id := a.nextTrackerID.Add(1)
	shard := a.shards[id%uint64(len(a.shards))]
	t = tracker.NewLocalTracker(id, shard, a.sampling)
	release = a.agg.RegisterTracker(t)
	return t, release
}

// AllocRaw allocates size bytes aligned to alignment from the shard t is
// bound to, tagging the allocation and recording the event on t's ring.
// It returns ErrOutOfMemory when the shard cannot satisfy the request and
// ErrInvalidAlignment when alignment is not a power of two.
func (a *Arena) AllocRaw(t *tracker.LocalTracker, size, alignment int, tag string) (ptr uintptr, err error) {
	shard := a.shards[t.ID%uint64(len(a.shards))]
	rawPtr, offset, _, err := shard.Allocate(size, alignment, tag)
	if err != nil {
		switch {
		case errors.Is(err, allocator.ErrInvalidAlignment):
			return 0, errors.Wrap(ErrInvalidAlignment, err.Error())
		case errors.Is(err, allocator.ErrOutOfMemory):
			return 0, errors.Wrap(ErrOutOfMemory, err.Error())
		default:
			return 0, err
		}
	}
	meta, _ := shard.Lookup(offset)
	t.RecordAlloc(meta)
	return uintptr(rawPtr), nil
}

// DeallocRaw locates the shard owning ptr's offset into the arena's region
// and frees it. A ptr that does not lie within this arena's mapping, that
// does not name a live allocation, or whose size does not match the size
// that allocation was made with, is a no-op, per spec.md §4.6's "on
// pointer-origin mismatch the call is a no-op" — a caller-supplied size
// that disagrees with the allocation's own record is exactly that kind of
// mismatch, so it is rejected the same way rather than silently freeing the
// wrong thing.
func (a *Arena) DeallocRaw(t *tracker.LocalTracker, ptr uintptr, size int) {
	buf := a.region.Bytes()
	if len(buf) == 0 {
		return
	}
	base := uintptr(unsafe.Pointer(&buf[0]))
	end := base + uintptr(a.usableCapacity)
	if ptr < base || ptr >= end {
		return
	}
	offset := int64(ptr - base)
	idx := int(offset / int64(a.shardCapacity))
	if idx < 0 || idx >= len(a.shards) {
		return
	}
	shard := a.shards[idx]
	localOffset := offset - int64(idx)*int64(a.shardCapacity)

	meta, ok := shard.Lookup(localOffset)
	if !ok {
		return
	}
	// Mirror Shard.Allocate's own zero-size promotion so a round-trip of an
	// AllocRaw(t, 0, ...) request isn't rejected here for disagreeing with
	// the size the shard actually recorded.
	wantSize := size
	if wantSize <= 0 {
		wantSize = 1
	}
	if wantSize != meta.RequestedSize {
		return
	}
	if err := shard.Deallocate(localOffset); err != nil {
		return
	}
	if t != nil {
		t.RecordDealloc(meta)
	}
}

// SnapshotJSON returns the arena-wide consistent point-in-time view spec.md
// §6 defines, delegating to the Aggregator.
func (a *Arena) SnapshotJSON() ([]byte, error) {
	return a.agg.SnapshotJSON()
}

// EventLogJSON returns the retained event history as a JSON array.
func (a *Arena) EventLogJSON() ([]byte, error) {
	return a.agg.EventLogJSON()
}

// Throughput reports drained events/sec and bytes/sec over the window that
// starts at the first batch drained since the previous call (see
// Aggregator.Throughput), per SPEC_FULL.md §7's supplemented sampling-window
// counters.
func (a *Arena) Throughput() aggregator.ThroughputSample {
	return a.agg.Throughput()
}

// PaddingReport computes a padding report over every currently live block
// across all shards.
func (a *Arena) PaddingReport() report.PaddingReport {
	return report.ComputePaddingReport(a.liveBlocks())
}

// CacheReport computes a cache-line utilization report over every currently
// live block across all shards, using the arena's configured line size.
func (a *Arena) CacheReport() report.CacheReport {
	return report.ComputeCacheReport(a.liveBlocks(), int(a.usableCapacity), a.cacheLineSize)
}

func (a *Arena) liveBlocks() []allocator.BlockMetadata {
	var blocks []allocator.BlockMetadata
	for _, s := range a.shards {
		s.VisitLive(func(b allocator.BlockMetadata) {
			blocks = append(blocks, b)
		})
	}
	return blocks
}

// Resource returns an opaque handle intended for a future polymorphic-
// allocator shim; Go has no standard allocator interface to adapt to, so
// this is deliberately minimal per spec.md §4.6's "implementations without
// such a shim may omit this" — kept as a documented seam rather than
// omitted entirely, so a caller wiring one in later has a stable anchor.
func (a *Arena) Resource() any {
	return a
}

package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/arenalab/memarena/allocator"
	"github.com/arenalab/memarena/tracker"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// tickPeriod is the aggregator's periodic drain interval, spec.md §4.5's
// "tick period ≈ 16 ms".
const tickPeriod = 16 * time.Millisecond

// eventLogCap bounds the replay log event_log_json serves; once full the
// oldest events are discarded to make room, since the log exists for
// recent-history inspection, not a durable audit trail (spec.md §1 excludes
// persistence entirely).
const eventLogCap = 65536

// Aggregator owns the registry of live LocalTrackers and the shard set it
// snapshots. One Aggregator is bound to exactly one ArenaFacade.
type Aggregator struct {
	shards []*allocator.Shard
	reg    *registry
	sink   EventSink
	logger *slog.Logger

	stop chan struct{}
	done chan struct{}

	started bool

	logMu     sync.Mutex
	eventLog  []tracker.AllocationEvent

	throughputMu sync.Mutex
	window       throughputWindow
}

// ThroughputSample is the supplemented read surfaced for external
// load-testing tools, derived from the tick loop's own drain history
// rather than re-scanning the raw event stream (see SPEC_FULL.md §7,
// grounded on original_source/src/simulation/metrics.hpp's sliding-window
// allocations/sec and bytes/sec counters).
type ThroughputSample struct {
	AllocationsPerSecond float64
	BytesPerSecond       float64
}

type throughputWindow struct {
	events     int64
	bytes      int64
	windowFrom time.Time
}

// New constructs an Aggregator over shards, forwarding drained batches to
// sink. A nil sink installs a no-op discardSink so Broadcast never needs a
// nil check on the tick path. A nil logger installs a discard logger,
// matching vam.Allocator's "nil logger ⇒ silent" convention.
func New(shards []*allocator.Shard, sink EventSink, logger *slog.Logger) *Aggregator {
	if sink == nil {
		sink = discardSink{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}))
	}
	return &Aggregator{
		shards: shards,
		reg:    newRegistry(),
		sink:   sink,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// RegisterTracker adds t to the aggregator's weak registry. The returned
// release func must be called by the owning thread when it stops producing
// events, so the tick loop can prune the handle instead of draining a ring
// nobody will ever append to again.
func (a *Aggregator) RegisterTracker(t *tracker.LocalTracker) (release func()) {
	h := a.reg.register(t)
	return h.release
}

// Start launches the periodic tick goroutine. Stop must be called exactly
// once to release it.
func (a *Aggregator) Start() {
	a.started = true
	go a.tickLoop()
}

// Stop signals the tick loop to exit and blocks until it has, guaranteeing
// shutdown "within one tick plus one pending broadcast" per spec.md §5.
// If Start was never called, Stop returns immediately.
func (a *Aggregator) Stop() {
	if !a.started {
		return
	}
	close(a.stop)
	<-a.done
}

func (a *Aggregator) tickLoop() {
	defer close(a.done)
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			a.drainOnce()
			return
		case <-ticker.C:
			a.drainOnce()
		}
	}
}

func (a *Aggregator) drainOnce() {
	var batch []tracker.AllocationEvent
	a.reg.forEachLive(func(h *weakHandle) {
		h.tracker.Ring().DrainInto(&batch)
	})
	pruned := a.reg.pruneStale()
	if pruned > 0 {
		a.logger.Debug("pruned stale trackers", slog.Int("count", pruned))
	}
	if len(batch) == 0 {
		return
	}

	a.appendToLog(batch)
	a.recordThroughput(batch)

	payload, err := encodeEvents(batch)
	if err != nil {
		a.logger.Warn("failed to encode event batch", slog.Any("error", err))
		return
	}
	a.broadcast(payload)
}

// broadcast isolates the sink call so a panicking or misbehaving
// third-party sink can never take the allocator down with it, per spec.md
// §7's "aggregator suppresses exceptions from the sink".
func (a *Aggregator) broadcast(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("event sink panicked", slog.Any("panic", r))
		}
	}()
	if err := a.sink.Broadcast(context.Background(), payload); err != nil {
		a.logger.Warn("event sink broadcast failed", slog.Any("error", err))
	}
}

func (a *Aggregator) appendToLog(batch []tracker.AllocationEvent) {
	a.logMu.Lock()
	defer a.logMu.Unlock()
	a.eventLog = append(a.eventLog, batch...)
	if overflow := len(a.eventLog) - eventLogCap; overflow > 0 {
		a.eventLog = a.eventLog[overflow:]
	}
}

func (a *Aggregator) recordThroughput(batch []tracker.AllocationEvent) {
	a.throughputMu.Lock()
	defer a.throughputMu.Unlock()
	if a.window.windowFrom.IsZero() {
		a.window.windowFrom = time.Now()
	}
	a.window.events += int64(len(batch))
	for _, e := range batch {
		a.window.bytes += int64(e.Block.ActualSize)
	}
}

// Throughput returns drained events/sec and bytes/sec over the current
// window, which starts at the first batch drained after construction or
// after the previous Throughput call; each call resets the window. Per
// SPEC_FULL.md §7's supplemented sampling-window counters.
func (a *Aggregator) Throughput() ThroughputSample {
	a.throughputMu.Lock()
	defer a.throughputMu.Unlock()

	if a.window.windowFrom.IsZero() {
		return ThroughputSample{}
	}
	elapsed := time.Since(a.window.windowFrom).Seconds()
	if elapsed <= 0 {
		return ThroughputSample{}
	}
	sample := ThroughputSample{
		AllocationsPerSecond: float64(a.window.events) / elapsed,
		BytesPerSecond:       float64(a.window.bytes) / elapsed,
	}
	a.window = throughputWindow{}
	return sample
}

// EventLogJSON serializes the retained event history as a JSON array,
// acquiring only the aggregator's own log mutex, matching spec.md §5's
// "event_log_json() acquires the aggregator registry lock" (here the
// narrower log mutex, since the registry itself is not needed to read the
// log).
func (a *Aggregator) EventLogJSON() ([]byte, error) {
	a.logMu.Lock()
	events := make([]tracker.AllocationEvent, len(a.eventLog))
	copy(events, a.eventLog)
	a.logMu.Unlock()
	return encodeEvents(events)
}

// SnapshotJSON acquires every shard's mutex in index order (deadlock-free
// by construction) and emits the consistent point-in-time view spec.md §6
// defines: type, capacity, total_allocated, total_free, fragmentation_pct,
// free_block_count, and a blocks array merged across all shards.
func (a *Aggregator) SnapshotJSON() ([]byte, error) {
	for _, s := range a.shards {
		s.Lock()
	}
	defer func() {
		for i := len(a.shards) - 1; i >= 0; i-- {
			a.shards[i].Unlock()
		}
	}()

	var capacity, totalAllocated, totalFree int64
	var freeBlockCount int
	var blocks []allocator.BlockMetadata
	for _, s := range a.shards {
		shardCap := s.CapacityLocked()
		shardAlloc := s.BytesAllocatedLocked()
		capacity += shardCap
		totalAllocated += shardAlloc
		totalFree += shardCap - shardAlloc
		freeBlockCount += s.FreeBlockCountLocked()
		s.VisitLiveLocked(func(b allocator.BlockMetadata) {
			blocks = append(blocks, b)
		})
	}

	fragPct := 0
	if totalFree > 0 {
		largest := largestFreeAcrossShards(a.shards)
		fragPct = int(100 * (1 - float64(largest)/float64(totalFree)))
	}

	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("type").String("snapshot")
	obj.Name("capacity").Int(int(capacity))
	obj.Name("total_allocated").Int(int(totalAllocated))
	obj.Name("total_free").Int(int(totalFree))
	obj.Name("fragmentation_pct").Int(fragPct)
	obj.Name("free_block_count").Int(freeBlockCount)
	blocksArr := obj.Name("blocks").Array()
	for _, b := range blocks {
		bObj := blocksArr.Object()
		writeBlockJSON(bObj, b)
		bObj.End()
	}
	blocksArr.End()
	obj.End()
	return w.Bytes(), w.Error()
}

// largestFreeAcrossShards reports the single largest free block over the
// whole arena, used only to compute the snapshot's aggregate
// fragmentation_pct; each shard's own largest-free-block query remains
// O(1), so this is O(shard_count), not O(N).
// largestFreeAcrossShards assumes every shard's mutex is already held by
// the caller (SnapshotJSON).
func largestFreeAcrossShards(shards []*allocator.Shard) int64 {
	var max int64
	for _, s := range shards {
		if lf := s.LargestFreeBlockLocked(); lf > max {
			max = lf
		}
	}
	return max
}

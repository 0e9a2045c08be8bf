package memarena

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arenalab/memarena/tracker"
)

type captureSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *captureSink) Broadcast(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.payloads = append(s.payloads, cp)
	return nil
}
func (s *captureSink) SetSnapshotProvider(func() []byte) {}
func (s *captureSink) SetCommandHandler(func([]byte))    {}

func newTestArena(t *testing.T, cfg Config) *Arena {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewRejectsNonPositiveArenaSize(t *testing.T) {
	_, err := New(Config{ArenaSize: 0})
	require.Error(t, err, "expected an error for a zero arena size")
}

func TestNewDefaultsShardCountTo256(t *testing.T) {
	a := newTestArena(t, Config{ArenaSize: 1 << 20})
	require.Len(t, a.shards, defaultShardCount)
}

func TestAllocRawThenDeallocRawRoundTrips(t *testing.T) {
	a := newTestArena(t, Config{ArenaSize: 1 << 16, ShardCount: 1})
	tr, release := a.NewTracker()
	defer release()

	ptr, err := a.AllocRaw(tr, 128, 16, "round-trip")
	require.NoError(t, err)
	require.NotZero(t, ptr, "AllocRaw returned a zero pointer")

	blocks := a.liveBlocks()
	require.Len(t, blocks, 1)

	a.DeallocRaw(tr, ptr, 128)
	require.Empty(t, a.liveBlocks(), "expected 0 live blocks after DeallocRaw")
}

func TestDeallocRawOnForeignPointerIsNoop(t *testing.T) {
	a := newTestArena(t, Config{ArenaSize: 1 << 16, ShardCount: 1})
	tr, release := a.NewTracker()
	defer release()

	_, err := a.AllocRaw(tr, 64, 16, "owned")
	require.NoError(t, err)

	// An address nowhere near the region's mapping: must not panic, must
	// not touch the live block that was just allocated.
	a.DeallocRaw(tr, 0x1, 64)

	require.Len(t, a.liveBlocks(), 1, "expected the unrelated live block to survive")
}

func TestAllocRawReturnsOutOfMemoryWhenShardExhausted(t *testing.T) {
	// ArenaSize is a full page so region.Acquire's page rounding doesn't
	// waste anything; ShardCount is chosen so each shard's carved buffer is
	// exactly 256 bytes. Every allocation also carries a 16-byte header, so
	// a 112-byte request reserves 128 bytes: two such requests fill the
	// shard exactly and the third fails.
	a := newTestArena(t, Config{ArenaSize: 4096, ShardCount: 16})
	tr, release := a.NewTracker()
	defer release()

	_, err := a.AllocRaw(tr, 112, 16, "a")
	require.NoError(t, err, "first AllocRaw")
	_, err = a.AllocRaw(tr, 112, 16, "b")
	require.NoError(t, err, "second AllocRaw")
	_, err = a.AllocRaw(tr, 112, 16, "c")
	require.Error(t, err, "expected the third AllocRaw on an exhausted shard to fail")
}

func TestDeallocRawFreesPointerInLastShardWhenShardCountDoesNotDivideArenaSize(t *testing.T) {
	// 65536 bytes over 10 shards doesn't divide evenly: shardCapacity works
	// out to 6553 with 6 bytes left over, permanently unused past the last
	// shard rather than folded into it. Under the old carving scheme that
	// gave the last shard's absorbed tail, a live pointer there would
	// compute idx == shardCount in DeallocRaw and get silently leaked; this
	// pins an allocation to the last shard and confirms it still round-trips.
	const shardCount = 10
	a := newTestArena(t, Config{ArenaSize: 1 << 16, ShardCount: shardCount})
	require.Equal(t, (1<<16)/shardCount, a.shardCapacity, "expected a non-dividing ShardCount/ArenaSize pair")

	var tr *tracker.LocalTracker
	for {
		candidate, release := a.NewTracker()
		t.Cleanup(release)
		if candidate.ID%uint64(shardCount) == uint64(shardCount-1) {
			tr = candidate
			break
		}
	}

	ptr, err := a.AllocRaw(tr, 128, 16, "last-shard")
	require.NoError(t, err)
	require.NotZero(t, ptr)
	require.Len(t, a.liveBlocks(), 1)

	a.DeallocRaw(tr, ptr, 128)
	require.Empty(t, a.liveBlocks(), "expected DeallocRaw to free a pointer owned by the last shard under non-dividing carving")
}

func TestSnapshotJSONAndPaddingReportReflectAllocations(t *testing.T) {
	a := newTestArena(t, Config{ArenaSize: 1 << 16, ShardCount: 4})
	tr, release := a.NewTracker()
	defer release()

	_, err := a.AllocRaw(tr, 100, 16, "snap")
	require.NoError(t, err)

	snap, err := a.SnapshotJSON()
	require.NoError(t, err)
	require.NotEmpty(t, snap)

	pr := a.PaddingReport()
	require.Len(t, pr.Blocks, 1)

	cr := a.CacheReport()
	require.NotZero(t, cr.TotalLines)
}

func TestEnableSinkStartsAggregatorDrainLoop(t *testing.T) {
	sink := &captureSink{}
	a := newTestArena(t, Config{ArenaSize: 1 << 16, ShardCount: 1, EnableSink: true, Sink: sink, Sampling: 1})
	tr, release := a.NewTracker()
	defer release()

	_, err := a.AllocRaw(tr, 64, 16, "live")
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.payloads)
		sink.mu.Unlock()
		if n > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a broadcast")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

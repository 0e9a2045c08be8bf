package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arenalab/memarena/allocator"
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
func (s *captureSink) SetSnapshotProvider(func() []byte)  {}
func (s *captureSink) SetCommandHandler(func(cmd []byte)) {}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func newTestShards(t *testing.T, n, size int) []*allocator.Shard {
	t.Helper()
	shards := make([]*allocator.Shard, n)
	for i := range shards {
		shards[i] = allocator.NewShard(make([]byte, size))
	}
	return shards
}

func TestAggregatorDrainsAndBroadcasts(t *testing.T) {
	shards := newTestShards(t, 1, 4096)
	sink := &captureSink{}
	agg := New(shards, sink, nil)

	lt := tracker.NewLocalTracker(1, shards[0], 1)
	release := agg.RegisterTracker(lt)
	defer release()

	_, off, actual, err := shards[0].Allocate(64, 16, "demo")
	require.NoError(t, err)
	lt.RecordAlloc(allocator.BlockMetadata{Offset: int(off), ActualSize: int(actual), Tag: "demo"})

	agg.Start()
	defer agg.Stop()

	deadline := time.After(2 * time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a broadcast")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAggregatorPrunesReleasedTrackers(t *testing.T) {
	shards := newTestShards(t, 1, 4096)
	agg := New(shards, nil, nil)

	lt := tracker.NewLocalTracker(1, shards[0], 1)
	release := agg.RegisterTracker(lt)
	release()

	agg.drainOnce()
	pruned := agg.reg.pruneStale()
	require.Zero(t, pruned, "expected pruneStale to already have run during drainOnce")

	count := 0
	agg.reg.forEachLive(func(*weakHandle) { count++ })
	require.Zero(t, count, "expected no live handles after release")
}

func TestSnapshotJSONReflectsLiveBlocks(t *testing.T) {
	shards := newTestShards(t, 2, 4096)
	agg := New(shards, nil, nil)

	_, _, _, err := shards[0].Allocate(100, 16, "a")
	require.NoError(t, err)
	_, _, _, err = shards[1].Allocate(200, 16, "b")
	require.NoError(t, err)

	payload, err := agg.SnapshotJSON()
	require.NoError(t, err)
	require.NotEmpty(t, payload)
	require.Contains(t, string(payload), `"tag":"a"`)
	require.Contains(t, string(payload), `"tag":"b"`)
}

func TestSnapshotJSONIsByteEqualAcrossCallsWithNoMutation(t *testing.T) {
	shards := newTestShards(t, 1, 4096)
	agg := New(shards, nil, nil)

	_, _, _, err := shards[0].Allocate(64, 16, "stable")
	require.NoError(t, err)

	a, err := agg.SnapshotJSON()
	require.NoError(t, err)
	b, err := agg.SnapshotJSON()
	require.NoError(t, err)
	require.Equal(t, string(a), string(b), "snapshots differ with no intervening mutation")
}

func TestEventLogJSONAfterDrain(t *testing.T) {
	shards := newTestShards(t, 1, 4096)
	agg := New(shards, nil, nil)

	lt := tracker.NewLocalTracker(1, shards[0], 1)
	agg.RegisterTracker(lt)

	lt.RecordAlloc(allocator.BlockMetadata{Offset: 0, ActualSize: 32})
	agg.drainOnce()

	payload, err := agg.EventLogJSON()
	require.NoError(t, err)
	require.NotEmpty(t, payload, "EventLogJSON produced empty output after a drained event")
}

func TestThroughputResetsWindowEachCall(t *testing.T) {
	shards := newTestShards(t, 1, 4096)
	agg := New(shards, nil, nil)

	lt := tracker.NewLocalTracker(1, shards[0], 1)
	agg.RegisterTracker(lt)
	lt.RecordAlloc(allocator.BlockMetadata{ActualSize: 1000})
	agg.drainOnce()

	first := agg.Throughput()
	require.Greater(t, first.BytesPerSecond, 0.0, "expected positive BytesPerSecond, got %v", first)

	second := agg.Throughput()
	require.Zero(t, second.BytesPerSecond, "expected a reset window on the second call, got %v", second)
}

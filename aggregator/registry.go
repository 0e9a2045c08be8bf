package aggregator

import (
	"sync"
	"sync/atomic"

	"github.com/arenalab/memarena/tracker"
	"github.com/dolthub/swiss"
)

// weakHandle models spec.md §5's "LocalTracker is shared between its
// owning thread (strong) and the Aggregator (weak; never prolongs
// lifetime)". Go has no ambient weak-reference runtime hook prior to the
// experimental weak package, so the weakness is modeled explicitly: the
// owning thread calls Release when it is done, flipping alive to false;
// the tick loop treats a dead handle as eligible for pruning rather than
// dereferencing a dangling pointer.
type weakHandle struct {
	id      uint64
	tracker *tracker.LocalTracker
	alive   atomic.Bool
}

// registry is the tracker-id-keyed table guarded by a single RWMutex, per
// spec.md §5 ("Tracker registry: guarded by a single mutex; acquisitions
// are short"). Reads (tick enumeration) take the read lock; registration
// and pruning take the write lock.
type registry struct {
	mu      sync.RWMutex
	handles *swiss.Map[uint64, *weakHandle]
	nextID  atomic.Uint64
}

func newRegistry() *registry {
	return &registry{handles: swiss.NewMap[uint64, *weakHandle](64)}
}

// register allocates a new tracker id, wraps t in a live weakHandle, and
// returns both. The caller must call release when its thread is done
// producing events for t.
func (r *registry) register(t *tracker.LocalTracker) *weakHandle {
	h := &weakHandle{id: r.nextID.Add(1), tracker: t}
	h.alive.Store(true)

	r.mu.Lock()
	r.handles.Put(h.id, h)
	r.mu.Unlock()
	return h
}

func (h *weakHandle) release() {
	h.alive.Store(false)
}

// forEachLive invokes fn for every currently live handle, holding only the
// read lock for the duration of enumeration.
func (r *registry) forEachLive(fn func(*weakHandle)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.handles.Iter(func(_ uint64, h *weakHandle) bool {
		if h.alive.Load() {
			fn(h)
		}
		return false
	})
}

// pruneStale removes every handle no longer alive and returns the count
// removed.
func (r *registry) pruneStale() int {
	var stale []uint64
	r.mu.RLock()
	r.handles.Iter(func(id uint64, h *weakHandle) bool {
		if !h.alive.Load() {
			stale = append(stale, id)
		}
		return false
	})
	r.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}
	r.mu.Lock()
	for _, id := range stale {
		r.handles.Delete(id)
	}
	r.mu.Unlock()
	return len(stale)
}

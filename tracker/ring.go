package tracker

import "sync/atomic"

// ringCapacity (R) is the fixed size of an EventRing, matching spec.md
// §4.3's "typical 4096". Must be a power of two so index wraparound is a
// cheap mask instead of a modulo.
const ringCapacity = 4096

const ringMask = ringCapacity - 1

// EventRing is a bounded single-producer/single-consumer ring buffer of
// AllocationEvents. TryPush is called only by the owning LocalTracker's
// goroutine; TryPop only by the Aggregator's drain loop. No dynamic
// allocation happens on either path once the ring is constructed, matching
// the ported original_source/src/tracker/tracker.hpp RingBuffer<T,N>.
//
// head is advanced (released) by the producer after writing a slot; tail is
// advanced (released) by the consumer after reading one. Each side only
// ever reads the other's index with an acquire load, giving the
// happens-before relationship the spec requires without a mutex.
type EventRing struct {
	buffer [ringCapacity]AllocationEvent
	head   atomic.Uint64
	tail   atomic.Uint64
}

// NewEventRing returns an empty ring ready for one producer and one
// consumer.
func NewEventRing() *EventRing {
	return &EventRing{}
}

// TryPush writes event into the ring and returns true, or returns false
// without blocking if the ring is full — the event is dropped, matching
// spec.md §4.3's "false on full; event is dropped".
func (r *EventRing) TryPush(event AllocationEvent) bool {
	head := r.head.Load()
	nextHead := (head + 1) & ringMask
	if nextHead == r.tail.Load() {
		return false
	}
	r.buffer[head] = event
	r.head.Store(nextHead)
	return true
}

// TryPop removes and returns the oldest event, or ok=false if the ring is
// currently empty.
func (r *EventRing) TryPop() (event AllocationEvent, ok bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return AllocationEvent{}, false
	}
	event = r.buffer[tail]
	r.tail.Store((tail + 1) & ringMask)
	return event, true
}

// DrainInto pops every currently-available event into out, returning the
// number drained. Used by the Aggregator's periodic tick.
func (r *EventRing) DrainInto(out *[]AllocationEvent) int {
	n := 0
	for {
		event, ok := r.TryPop()
		if !ok {
			return n
		}
		*out = append(*out, event)
		n++
	}
}

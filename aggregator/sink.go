// Package aggregator implements the registry of live LocalTrackers and the
// periodic drain loop that forwards batched allocation events to an
// EventSink (components E and J of the arena). It also hosts the
// synchronous, cross-shard snapshot_json and event_log_json views, since
// both need the same shard-mutex-index-order discipline the tick loop
// otherwise doesn't care about.
package aggregator

import "context"

// EventSink is the pluggable receiver of serialized event batches and
// snapshot/command plumbing described in spec.md §6. original_source's
// ws_server.hpp wires the same three responsibilities — broadcasting
// batches, serving a snapshot to newly attached subscribers, and handling
// inbound commands — through a tracker collection plus two std::function
// callbacks; this interface gives a concrete WS/HTTP server (out of scope
// for this module) one well-typed seam instead of three loose callbacks.
type EventSink interface {
	// Broadcast delivers one JSON array of events. Called at least once per
	// tick whenever the aggregator has drained one or more events.
	Broadcast(ctx context.Context, payload []byte) error

	// SetSnapshotProvider installs fn, consulted by the sink when a new
	// subscriber attaches; fn returns a serialized snapshot.
	SetSnapshotProvider(fn func() []byte)

	// SetCommandHandler installs fn to receive inbound messages whose
	// format is opaque to the aggregator.
	SetCommandHandler(fn func(cmd []byte))
}

// discardSink is installed when a Config carries no sink, so Broadcast
// failures never need a nil check on the hot path.
type discardSink struct{}

func (discardSink) Broadcast(context.Context, []byte) error   { return nil }
func (discardSink) SetSnapshotProvider(func() []byte)         {}
func (discardSink) SetCommandHandler(func(cmd []byte))        {}

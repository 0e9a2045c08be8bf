package aggregator

import (
	"github.com/arenalab/memarena/allocator"
	"github.com/arenalab/memarena/tracker"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// writeBlockJSON appends one block's fields to an array/object entry,
// shared by snapshot_json's blocks array and event_log_json's per-event
// block payload, per spec.md §6's field sets for both.
func writeBlockJSON(obj jwriter.ObjectState, b allocator.BlockMetadata) {
	obj.Name("offset").Int(b.Offset)
	obj.Name("size").Int(b.RequestedSize)
	obj.Name("alignment").Int(b.Alignment)
	obj.Name("actual_size").Int(b.ActualSize)
	obj.Name("tag").String(allocator.SanitizeTag(b.Tag))
	obj.Name("timestamp_us").Int(int(b.TimestampUS))
}

// writeEventJSON renders one AllocationEvent as a flat JSON object matching
// spec.md §6's "Event JSON" field set exactly.
func writeEventJSON(obj jwriter.ObjectState, e tracker.AllocationEvent) {
	obj.Name("type").String(e.Type.String())
	obj.Name("event_id").Int(int(int64(e.EventID)))
	writeBlockJSON(obj, e.Block)
	obj.Name("total_allocated").Int(int(e.TotalAllocated))
	obj.Name("total_free").Int(int(e.TotalFree))
	obj.Name("fragmentation_pct").Int(e.FragmentationPct)
	obj.Name("free_block_count").Int(e.FreeBlockCount)
}

// encodeEvents serializes a batch of events as the JSON array the
// EventSink's Broadcast expects (spec.md §6: "one JSON array of events").
func encodeEvents(events []tracker.AllocationEvent) ([]byte, error) {
	w := jwriter.NewWriter()
	arr := w.Array()
	for _, e := range events {
		obj := arr.Object()
		writeEventJSON(obj, e)
		obj.End()
	}
	arr.End()
	return w.Bytes(), w.Error()
}

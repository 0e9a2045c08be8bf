package allocator

import "time"

// BlockMetadata is the reportable view of a single live (or just-freed)
// block: everything the tracker, the aggregator, and the reports need
// without re-deriving it from the raw free structures.
type BlockMetadata struct {
	Offset        int    // offset of the payload pointer, relative to the region base
	BlockOffset   int    // offset of the block's header, relative to the region base
	RequestedSize int    // size originally requested by the caller
	Alignment     int    // alignment originally requested by the caller
	ActualSize    int    // total bytes reserved from the free pool, including header and padding
	Tag           string // sanitized, UTF-8-safe label (see SanitizeTag)
	TimestampUS   int64  // microseconds since processStart
}

var processStart = time.Now()

// nowMicros returns microseconds since an arbitrary but monotonic epoch
// fixed at process start, matching the spec's "monotonic epoch chosen by
// the implementation" for timestamp_us.
func nowMicros() int64 {
	return time.Since(processStart).Microseconds()
}

const maxTagLength = 32

// SanitizeTag truncates tag to the spec's fixed tag width and replaces any
// byte that is not printable ASCII with '?', guaranteeing the result is
// both ASCII-clean and safe to embed in JSON without further escaping
// surprises — the spec's §9 resolution for tag storage.
func SanitizeTag(tag string) string {
	if len(tag) > maxTagLength {
		tag = tag[:maxTagLength]
	}
	b := []byte(tag)
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '?'
		}
	}
	return string(b)
}

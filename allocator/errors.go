package allocator

import "github.com/cockroachdb/errors"

// Sentinel errors returned at the allocator's public boundary. Callers
// should compare with errors.Is, never with ==, since every returned error
// is wrapped with additional context via cockroachdb/errors.
var (
	// ErrInvalidAlignment is returned by Allocate when the requested
	// alignment is not a power of two.
	ErrInvalidAlignment = errors.New("allocator: alignment must be a power of two")

	// ErrOutOfMemory is returned by Allocate when no free block (small-class
	// or tree) of sufficient size exists in the shard.
	ErrOutOfMemory = errors.New("allocator: shard exhausted")

	// ErrBadPointer is returned by Deallocate when ptr does not lie within
	// the shard's range or is not aligned to the allocator's internal
	// quantum.
	ErrBadPointer = errors.New("allocator: pointer not owned by this shard")
)

// corruption panics when internal structural invariants are violated. Per
// the spec's error-handling design, these are programming errors, not
// conditions a caller can recover from, so they abort the process rather
// than returning an error value.
func corruption(format string, args ...any) {
	panic(errors.Newf("allocator: corrupted internal state: "+format, args...))
}

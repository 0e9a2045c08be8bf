//go:build !debug_memarena

package allocator

// debugValidate is a no-op outside the debug_memarena build tag so
// production allocation/deallocation never pays for the full structural
// walk; see validate_debug.go for what it does when enabled.
func (s *Shard) debugValidate() {}

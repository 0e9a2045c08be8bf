//go:build debug_memarena

package allocator

// debugValidate performs the full structural walk spec.md §8 describes:
// red-black properties, augmentation correctness, and tiling (no two free
// regions overlap). It is compiled in only under the debug_memarena tag,
// the same gating the teacher uses in memutils/validate_debug.go /
// validate_prod.go to keep expensive checks out of the production hot
// path while letting tests opt in.
func (s *Shard) debugValidate() {
	s.validateRB()
	s.validateTiling()
}

func (s *Shard) validateRB() {
	if s.root == nilOffset {
		return
	}
	if s.nodeAt(s.root).color != black {
		corruption("root is not black")
	}
	blackHeight := -1
	var walk func(off int64, depth int)
	walk = func(off int64, depth int) {
		if off == nilOffset {
			if blackHeight == -1 {
				blackHeight = depth
			} else if depth != blackHeight {
				corruption("black height mismatch: got %d, want %d", depth, blackHeight)
			}
			return
		}
		n := s.nodeAt(off)
		next := depth
		if n.color == black {
			next++
		} else if s.nodeAt(n.left).color == red || s.nodeAt(n.right).color == red {
			corruption("red node at offset %d has a red child", off)
		}
		want := n.size
		if l := s.nodeAt(n.left).subtreeMax; l > want {
			want = l
		}
		if r := s.nodeAt(n.right).subtreeMax; r > want {
			want = r
		}
		if n.subtreeMax != want {
			corruption("node at offset %d has subtreeMax %d, want %d", off, n.subtreeMax, want)
		}
		walk(n.left, next)
		walk(n.right, next)
	}
	walk(s.root, 0)
}

// validateTiling walks every free region (tree nodes and small-class list
// entries) plus every live block and checks that none overlap and that
// together they tile the shard exactly.
func (s *Shard) validateTiling() {
	type span struct{ start, end int64 }
	var spans []span

	if s.root != nilOffset {
		off := s.minimum(s.root)
		for off != nilOffset {
			n := s.nodeAt(off)
			spans = append(spans, span{off, off + n.size})
			off = s.successor(off)
		}
	}
	for c := 1; c <= SmallClassCount; c++ {
		for off := s.smallHeads[c-1]; off != nilOffset; off = s.smallAt(off).next {
			spans = append(spans, span{off, off + classSize(c)})
		}
	}
	s.live.Iter(func(_ int64, meta *BlockMetadata) bool {
		spans = append(spans, span{int64(meta.BlockOffset), int64(meta.BlockOffset) + int64(meta.ActualSize)})
		return false
	})

	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				corruption("overlapping regions [%d,%d) and [%d,%d)", spans[i].start, spans[i].end, spans[j].start, spans[j].end)
			}
		}
	}

	var total int64
	for _, sp := range spans {
		total += sp.end - sp.start
	}
	if total != s.usable {
		corruption("regions cover %d bytes, want %d", total, s.usable)
	}
}

package allocator

// rbtree.go implements the intrusive, address-ordered, subtree_max-augmented
// red-black tree described in the spec: nodes are blockHeader values living
// inside free bytes of the shard (never on the Go heap), linked by offset
// rather than pointer, with a single shared sentinel standing in for "no
// child" the way other_examples/warawara28-tlsf-go__tlsf.go links its
// FreeBlockHeader list nodes by raw pointer arithmetic over a byte arena.
//
// All functions here assume the caller already holds the shard's mutex.

// updateSubtreeMax recomputes off's subtreeMax from its own size and its
// two children's subtreeMax. Every mutation that changes a subtree's shape
// or a node's size must call this bottom-up to the root afterward.
func (s *Shard) updateSubtreeMax(off int64) {
	if off == nilOffset {
		return
	}
	n := s.nodeAt(off)
	max := n.size
	if l := s.nodeAt(n.left).subtreeMax; l > max {
		max = l
	}
	if r := s.nodeAt(n.right).subtreeMax; r > max {
		max = r
	}
	n.subtreeMax = max
}

// refreshSubtreeMaxUpward walks from off to the root, recomputing
// subtreeMax at every ancestor.
func (s *Shard) refreshSubtreeMaxUpward(off int64) {
	for off != nilOffset {
		s.updateSubtreeMax(off)
		off = s.nodeAt(off).parent
	}
}

func (s *Shard) rotateLeft(x int64) {
	xNode := s.nodeAt(x)
	y := xNode.right
	yNode := s.nodeAt(y)

	xNode.right = yNode.left
	if yNode.left != nilOffset {
		s.nodeAt(yNode.left).parent = x
	}
	yNode.parent = xNode.parent
	if xNode.parent == nilOffset {
		s.root = y
	} else {
		p := s.nodeAt(xNode.parent)
		if p.left == x {
			p.left = y
		} else {
			p.right = y
		}
	}
	yNode.left = x
	xNode.parent = y

	s.updateSubtreeMax(x)
	s.updateSubtreeMax(y)
}

func (s *Shard) rotateRight(x int64) {
	xNode := s.nodeAt(x)
	y := xNode.left
	yNode := s.nodeAt(y)

	xNode.left = yNode.right
	if yNode.right != nilOffset {
		s.nodeAt(yNode.right).parent = x
	}
	yNode.parent = xNode.parent
	if xNode.parent == nilOffset {
		s.root = y
	} else {
		p := s.nodeAt(xNode.parent)
		if p.left == x {
			p.left = y
		} else {
			p.right = y
		}
	}
	yNode.right = x
	xNode.parent = y

	s.updateSubtreeMax(x)
	s.updateSubtreeMax(y)
}

// insertFree initializes a fresh blockHeader of the given size at off and
// inserts it into the tree, keyed by address (off itself). Callers must
// ensure the bytes at off..off+size are not otherwise referenced.
func (s *Shard) insertFree(off, size int64) {
	n := s.nodeAt(off)
	n.size = size
	n.parent = nilOffset
	n.left = nilOffset
	n.right = nilOffset
	n.subtreeMax = size
	n.color = red

	if s.root == nilOffset {
		n.color = black
		s.root = off
		s.freeBlockCount++
		return
	}

	cur := s.root
	var parent int64
	for cur != nilOffset {
		parent = cur
		curNode := s.nodeAt(cur)
		curNode.subtreeMax = maxI64(curNode.subtreeMax, size)
		if off < cur {
			cur = curNode.left
		} else if off > cur {
			cur = curNode.right
		} else {
			corruption("attempted to insert a free block at offset %d which already exists in the tree", off)
		}
	}
	n.parent = parent
	pNode := s.nodeAt(parent)
	if off < parent {
		pNode.left = off
	} else {
		pNode.right = off
	}

	s.insertFixup(off)
	s.freeBlockCount++
}

func (s *Shard) insertFixup(z int64) {
	for {
		zNode := s.nodeAt(z)
		if zNode.parent == nilOffset {
			break
		}
		parent := zNode.parent
		pNode := s.nodeAt(parent)
		if pNode.color == black {
			break
		}
		grandparent := pNode.parent
		if grandparent == nilOffset {
			// A red root would violate property 2; defensively fix it.
			pNode.color = black
			break
		}
		gNode := s.nodeAt(grandparent)

		if parent == gNode.left {
			uncle := gNode.right
			uNode := s.nodeAt(uncle)
			if uNode.color == red {
				pNode.color = black
				uNode.color = black
				gNode.color = red
				z = grandparent
				continue
			}
			if z == pNode.right {
				z = parent
				s.rotateLeft(z)
				zNode = s.nodeAt(z)
				parent = zNode.parent
				pNode = s.nodeAt(parent)
				grandparent = pNode.parent
				gNode = s.nodeAt(grandparent)
			}
			pNode.color = black
			gNode.color = red
			s.rotateRight(grandparent)
		} else {
			uncle := gNode.left
			uNode := s.nodeAt(uncle)
			if uNode.color == red {
				pNode.color = black
				uNode.color = black
				gNode.color = red
				z = grandparent
				continue
			}
			if z == pNode.left {
				z = parent
				s.rotateRight(z)
				zNode = s.nodeAt(z)
				parent = zNode.parent
				pNode = s.nodeAt(parent)
				grandparent = pNode.parent
				gNode = s.nodeAt(grandparent)
			}
			pNode.color = black
			gNode.color = red
			s.rotateLeft(grandparent)
		}
	}
	s.nodeAt(s.root).color = black
	s.refreshSubtreeMaxUpward(s.root)
}

func (s *Shard) transplant(u, v int64) {
	uNode := s.nodeAt(u)
	if uNode.parent == nilOffset {
		s.root = v
	} else {
		p := s.nodeAt(uNode.parent)
		if p.left == u {
			p.left = v
		} else {
			p.right = v
		}
	}
	if v != nilOffset {
		s.nodeAt(v).parent = uNode.parent
	} else {
		// The sentinel's parent field is scratch space used only during
		// deleteFixup to know where to continue from; it is never
		// persisted as real tree structure.
		s.sentinel.parent = uNode.parent
	}
}

func (s *Shard) minimum(off int64) int64 {
	for {
		n := s.nodeAt(off)
		if n.left == nilOffset {
			return off
		}
		off = n.left
	}
}

func (s *Shard) maximum(off int64) int64 {
	for {
		n := s.nodeAt(off)
		if n.right == nilOffset {
			return off
		}
		off = n.right
	}
}

// successor returns the in-order successor of off within the whole tree
// (not size-filtered), or nilOffset if off is the maximum.
func (s *Shard) successor(off int64) int64 {
	n := s.nodeAt(off)
	if n.right != nilOffset {
		return s.minimum(n.right)
	}
	cur, parent := off, n.parent
	for parent != nilOffset && cur == s.nodeAt(parent).right {
		cur = parent
		parent = s.nodeAt(parent).parent
	}
	return parent
}

// predecessor returns the in-order predecessor of off within the whole
// tree, or nilOffset if off is the minimum.
func (s *Shard) predecessor(off int64) int64 {
	n := s.nodeAt(off)
	if n.left != nilOffset {
		return s.maximum(n.left)
	}
	cur, parent := off, n.parent
	for parent != nilOffset && cur == s.nodeAt(parent).left {
		cur = parent
		parent = s.nodeAt(parent).parent
	}
	return parent
}

// removeFree deletes the node at off from the tree (CLRS RB-delete) and
// keeps the subtree_max augmentation consistent.
func (s *Shard) removeFree(off int64) {
	y := off
	yNode := s.nodeAt(y)
	yOriginalColor := yNode.color
	var x, xParent int64

	if yNode.left == nilOffset {
		x = yNode.right
		xParent = yNode.parent
		s.transplant(off, yNode.right)
	} else if yNode.right == nilOffset {
		x = yNode.left
		xParent = yNode.parent
		s.transplant(off, yNode.left)
	} else {
		y = s.minimum(yNode.right)
		yNode2 := s.nodeAt(y)
		yOriginalColor = yNode2.color
		x = yNode2.right

		if yNode2.parent == off {
			xParent = y
		} else {
			xParent = yNode2.parent
			s.transplant(y, yNode2.right)
			yNode2.right = s.nodeAt(off).right
			s.nodeAt(yNode2.right).parent = y
		}
		s.transplant(off, y)
		yNode2.left = s.nodeAt(off).left
		s.nodeAt(yNode2.left).parent = y
		yNode2.color = s.nodeAt(off).color
	}

	if xParent != nilOffset {
		s.updateSubtreeMax(xParent)
		s.refreshSubtreeMaxUpward(xParent)
	} else if s.root != nilOffset {
		s.refreshSubtreeMaxUpward(s.root)
	}

	if yOriginalColor == black {
		s.deleteFixup(x, xParent)
	}

	s.sentinel.parent = nilOffset
	s.freeBlockCount--
}

func (s *Shard) deleteFixup(x, xParent int64) {
	for x != s.root && s.nodeAt(x).color == black {
		if xParent == nilOffset {
			break
		}
		pNode := s.nodeAt(xParent)
		if x == pNode.left {
			w := pNode.right
			wNode := s.nodeAt(w)
			if wNode.color == red {
				wNode.color = black
				pNode.color = red
				s.rotateLeft(xParent)
				pNode = s.nodeAt(xParent)
				w = pNode.right
				wNode = s.nodeAt(w)
			}
			if s.nodeAt(wNode.left).color == black && s.nodeAt(wNode.right).color == black {
				wNode.color = red
				x = xParent
				xParent = s.nodeAt(x).parent
				continue
			}
			if s.nodeAt(wNode.right).color == black {
				s.nodeAt(wNode.left).color = black
				wNode.color = red
				s.rotateRight(w)
				pNode = s.nodeAt(xParent)
				w = pNode.right
				wNode = s.nodeAt(w)
			}
			wNode.color = pNode.color
			pNode.color = black
			s.nodeAt(wNode.right).color = black
			s.rotateLeft(xParent)
			x = s.root
			xParent = nilOffset
		} else {
			w := pNode.left
			wNode := s.nodeAt(w)
			if wNode.color == red {
				wNode.color = black
				pNode.color = red
				s.rotateRight(xParent)
				pNode = s.nodeAt(xParent)
				w = pNode.left
				wNode = s.nodeAt(w)
			}
			if s.nodeAt(wNode.right).color == black && s.nodeAt(wNode.left).color == black {
				wNode.color = red
				x = xParent
				xParent = s.nodeAt(x).parent
				continue
			}
			if s.nodeAt(wNode.left).color == black {
				s.nodeAt(wNode.right).color = black
				wNode.color = red
				s.rotateLeft(w)
				pNode = s.nodeAt(xParent)
				w = pNode.left
				wNode = s.nodeAt(w)
			}
			wNode.color = pNode.color
			pNode.color = black
			s.nodeAt(wNode.left).color = black
			s.rotateRight(xParent)
			x = s.root
			xParent = nilOffset
		}
	}
	s.nodeAt(x).color = black
	if s.root != nilOffset {
		s.refreshSubtreeMaxUpward(s.root)
	}
}

// firstFit returns the lowest-address free tree node whose size is >= need,
// using the subtree_max augmentation to prune whole subtrees in O(log N),
// per the spec's §4.2 algorithm. It does not mutate the tree.
func (s *Shard) firstFit(need int64) int64 {
	cur := s.root
	best := nilOffset
	for cur != nilOffset {
		n := s.nodeAt(cur)
		left := n.left
		if left != nilOffset && s.nodeAt(left).subtreeMax >= need {
			cur = left
			continue
		}
		if n.size >= need {
			best = cur
			break
		}
		cur = n.right
	}
	return best
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

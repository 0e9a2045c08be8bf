package report

import (
	"github.com/arenalab/memarena/allocator"
	"golang.org/x/exp/slices"
)

// defaultLineSize is the conservative x86-64 fallback, used whenever the
// configured line size is invalid (not a power of two), matching
// original_source/src/interface/cache_analyzer.cpp's constructor fallback.
const defaultLineSize = 64

// CacheLine is the per-line detail of a CacheReport, grounded on
// original_source's CacheLineInfo. DominantTag supplements the original's
// plain tags list with the tag occupying the most bytes of the line (see
// SPEC_FULL.md §7).
type CacheLine struct {
	LineIndex    int
	LineOffset   int
	BytesUsed    int
	BytesWasted  int
	Utilization  float64
	IsSplit      bool
	Tags         []string
	DominantTag  string
}

// CacheReport is spec.md §4.7's CacheReport.
type CacheReport struct {
	CacheLineSize    int
	TotalLines       int
	ActiveLines      int
	FullyUtilized    int
	SplitAllocations int
	AvgUtilization   float64
	Lines            []CacheLine
}

type lineAccum struct {
	bytesUsed  int
	isSplit    bool
	tags       []string
	tagBytes   map[string]int
}

// NormalizeLineSize returns lineSize if it is a positive power of two,
// otherwise defaultLineSize, matching spec.md §4.7's "falls back to 64 if
// invalid" rule.
func NormalizeLineSize(lineSize int) int {
	if lineSize > 0 && lineSize&(lineSize-1) == 0 {
		return lineSize
	}
	return defaultLineSize
}

// ComputeCacheReport maps blocks onto fixed-width cache lines of the given
// size (already normalized by the caller, e.g. via NormalizeLineSize) and
// computes per-line occupancy and aggregate statistics, following
// original_source/src/interface/cache_analyzer.cpp's analyze() algorithm.
func ComputeCacheReport(blocks []allocator.BlockMetadata, capacity, lineSize int) CacheReport {
	lineSize = NormalizeLineSize(lineSize)

	r := CacheReport{CacheLineSize: lineSize}
	if capacity > 0 {
		r.TotalLines = (capacity + lineSize - 1) / lineSize
	}
	if len(blocks) == 0 || capacity == 0 {
		return r
	}

	lines := make(map[int]*lineAccum)

	for _, b := range blocks {
		start := b.Offset
		end := b.Offset + b.ActualSize
		if end <= start {
			continue
		}
		firstLine := start / lineSize
		lastLine := (end - 1) / lineSize
		split := lastLine > firstLine
		if split {
			r.SplitAllocations++
		}

		tag := allocator.SanitizeTag(b.Tag)
		for line := firstLine; line <= lastLine; line++ {
			lineStart := line * lineSize
			lineEnd := lineStart + lineSize

			overlapStart := start
			if lineStart > overlapStart {
				overlapStart = lineStart
			}
			overlapEnd := end
			if lineEnd < overlapEnd {
				overlapEnd = lineEnd
			}
			if overlapStart >= overlapEnd {
				continue
			}

			acc, ok := lines[line]
			if !ok {
				acc = &lineAccum{tagBytes: make(map[string]int)}
				lines[line] = acc
			}
			overlap := overlapEnd - overlapStart
			acc.bytesUsed += overlap
			if split {
				acc.isSplit = true
			}
			if tag != "" {
				acc.tags = append(acc.tags, tag)
				acc.tagBytes[tag] += overlap
			}
		}
	}

	var totalUtil float64
	for idx, acc := range lines {
		bytesUsed := acc.bytesUsed
		if bytesUsed > lineSize {
			bytesUsed = lineSize
		}
		util := float64(bytesUsed) / float64(lineSize)

		r.Lines = append(r.Lines, CacheLine{
			LineIndex:   idx,
			LineOffset:  idx * lineSize,
			BytesUsed:   bytesUsed,
			BytesWasted: lineSize - bytesUsed,
			Utilization: util,
			IsSplit:     acc.isSplit,
			Tags:        acc.tags,
			DominantTag: dominantTag(acc.tagBytes),
		})
		if bytesUsed == lineSize {
			r.FullyUtilized++
		}
		totalUtil += util
	}

	r.ActiveLines = len(r.Lines)
	if r.ActiveLines > 0 {
		r.AvgUtilization = totalUtil / float64(r.ActiveLines)
	}

	slices.SortFunc(r.Lines, func(a, b CacheLine) bool {
		return a.LineIndex < b.LineIndex
	})
	return r
}

func dominantTag(tagBytes map[string]int) string {
	best, bestBytes := "", -1
	for tag, bytes := range tagBytes {
		if bytes > bestBytes || (bytes == bestBytes && tag < best) {
			best, bestBytes = tag, bytes
		}
	}
	return best
}

// Package report implements the three pull-based diagnostic analyzers
// (components G, H, I of the arena): padding accounting, cache-line
// utilization, and compile-time struct layout. All three read a
// point-in-time snapshot of live blocks rather than the allocator's
// internal structures directly, matching spec.md §2's "Reports... are
// pull-based, computed on demand from a consistent snapshot."
package report

import "github.com/arenalab/memarena/allocator"

// BlockPadding is the per-block detail line of a PaddingReport, grounded on
// original_source/src/interface/padding_inspector.hpp's BlockPaddingInfo.
type BlockPadding struct {
	Offset        int
	RequestedSize int
	ActualSize    int
	Alignment     int
	PaddingBytes  int
	Efficiency    float64
	Tag           string
}

// TagPadding aggregates padding waste by sanitized tag, the supplemented
// aggregate from SPEC_FULL.md §7 (not present in spec.md's distillation;
// the original's padding_inspector only reports per-block and overall
// totals).
type TagPadding struct {
	Count         int
	TotalRequested int
	TotalActual   int
	TotalPadding  int
}

// PaddingReport is spec.md §4.7's PaddingReport: per-block padding detail
// plus aggregate sums and an overall efficiency ratio.
type PaddingReport struct {
	TotalRequested int
	TotalActual    int
	TotalWasted    int
	Efficiency     float64
	Blocks         []BlockPadding
	ByTag          map[string]TagPadding
}

// ComputePaddingReport builds a PaddingReport from a snapshot of live
// blocks. Efficiency is requested/actual, 0 when actual_size is 0 for a
// block (or for the aggregate, when total_actual is 0) — spec.md §4.7's
// exact definition.
func ComputePaddingReport(blocks []allocator.BlockMetadata) PaddingReport {
	var r PaddingReport
	r.ByTag = make(map[string]TagPadding)

	for _, b := range blocks {
		padding := b.ActualSize - b.RequestedSize
		if padding < 0 {
			padding = 0
		}
		eff := 0.0
		if b.ActualSize > 0 {
			eff = float64(b.RequestedSize) / float64(b.ActualSize)
		}
		tag := allocator.SanitizeTag(b.Tag)

		r.Blocks = append(r.Blocks, BlockPadding{
			Offset:        b.Offset,
			RequestedSize: b.RequestedSize,
			ActualSize:    b.ActualSize,
			Alignment:     b.Alignment,
			PaddingBytes:  padding,
			Efficiency:    eff,
			Tag:           tag,
		})

		r.TotalRequested += b.RequestedSize
		r.TotalActual += b.ActualSize

		agg := r.ByTag[tag]
		agg.Count++
		agg.TotalRequested += b.RequestedSize
		agg.TotalActual += b.ActualSize
		agg.TotalPadding += padding
		r.ByTag[tag] = agg
	}

	if r.TotalActual > r.TotalRequested {
		r.TotalWasted = r.TotalActual - r.TotalRequested
	}
	if r.TotalActual > 0 {
		r.Efficiency = float64(r.TotalRequested) / float64(r.TotalActual)
	}
	return r
}

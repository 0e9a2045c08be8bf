package report

// FieldLayout is one field of a LayoutReport, grounded on
// original_source/src/interface/padding_inspector.hpp's FieldInfo.
type FieldLayout struct {
	Name          string
	Offset        int
	Size          int
	Alignment     int
	PaddingBefore int
}

// LayoutReport is spec.md §4.7's compile-time struct-field table. Go has no
// offsetof/alignof macro expansion, so callers build the FieldInput slice
// themselves (typically with unsafe.Offsetof/unsafe.Sizeof/unsafe.Alignof
// at the call site) and hand it to ComputeLayoutReport, which is the pure
// computation the original's MMAP_VIZ_INSPECT macro performs after
// expanding its field list.
type LayoutReport struct {
	TypeName        string
	TotalSize       int
	TotalAlignment  int
	UsefulBytes     int
	PaddingBytes    int
	TailPadding     int
	Efficiency      float64
	Fields          []FieldLayout
}

// FieldInput is what a caller supplies per field before padding_before is
// derived.
type FieldInput struct {
	Name      string
	Offset    int
	Size      int
	Alignment int
}

// ComputeLayoutReport derives padding_before for every field (gap from the
// previous field's end to this field's offset, 0 for the first field),
// tail_padding (bytes after the last field to totalSize), and overall
// efficiency (useful_bytes/total_size, 0 when totalSize is 0) — spec.md
// §4.7's exact definitions.
func ComputeLayoutReport(typeName string, totalSize, totalAlignment int, fields []FieldInput) LayoutReport {
	r := LayoutReport{
		TypeName:       typeName,
		TotalSize:      totalSize,
		TotalAlignment: totalAlignment,
	}

	prevEnd := 0
	for _, f := range fields {
		paddingBefore := 0
		if f.Offset >= prevEnd {
			paddingBefore = f.Offset - prevEnd
		}
		r.Fields = append(r.Fields, FieldLayout{
			Name:          f.Name,
			Offset:        f.Offset,
			Size:          f.Size,
			Alignment:     f.Alignment,
			PaddingBefore: paddingBefore,
		})
		r.UsefulBytes += f.Size
		prevEnd = f.Offset + f.Size
	}

	if totalSize >= prevEnd {
		r.TailPadding = totalSize - prevEnd
	}
	r.PaddingBytes = totalSize - r.UsefulBytes
	if totalSize > 0 {
		r.Efficiency = float64(r.UsefulBytes) / float64(totalSize)
	}
	return r
}

package report

import "github.com/launchdarkly/go-jsonstream/v3/jwriter"

// PaddingJSON renders r as a JSON object, following the same
// jwriter.ObjectState streaming style as the teacher's BlockJsonData
// (memutils/metadata/metadata.go) rather than encoding/json struct tags.
func PaddingJSON(r PaddingReport) ([]byte, error) {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("total_requested").Int(r.TotalRequested)
	obj.Name("total_actual").Int(r.TotalActual)
	obj.Name("total_wasted").Int(r.TotalWasted)
	obj.Name("efficiency").Float64(r.Efficiency)

	blocksArr := obj.Name("blocks").Array()
	for _, b := range r.Blocks {
		bObj := blocksArr.Object()
		bObj.Name("offset").Int(b.Offset)
		bObj.Name("requested_size").Int(b.RequestedSize)
		bObj.Name("actual_size").Int(b.ActualSize)
		bObj.Name("alignment").Int(b.Alignment)
		bObj.Name("padding_bytes").Int(b.PaddingBytes)
		bObj.Name("efficiency").Float64(b.Efficiency)
		bObj.Name("tag").String(b.Tag)
		bObj.End()
	}
	blocksArr.End()

	byTagObj := obj.Name("by_tag").Object()
	for tag, agg := range r.ByTag {
		tagObj := byTagObj.Name(tag).Object()
		tagObj.Name("count").Int(agg.Count)
		tagObj.Name("total_requested").Int(agg.TotalRequested)
		tagObj.Name("total_actual").Int(agg.TotalActual)
		tagObj.Name("total_padding").Int(agg.TotalPadding)
		tagObj.End()
	}
	byTagObj.End()

	obj.End()
	return w.Bytes(), w.Error()
}

// CacheJSON renders r as a JSON object, lines sorted by line_index per
// spec.md §4.7.
func CacheJSON(r CacheReport) ([]byte, error) {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("cache_line_size").Int(r.CacheLineSize)
	obj.Name("total_lines").Int(r.TotalLines)
	obj.Name("active_lines").Int(r.ActiveLines)
	obj.Name("fully_utilized").Int(r.FullyUtilized)
	obj.Name("split_allocations").Int(r.SplitAllocations)
	obj.Name("avg_utilization").Float64(r.AvgUtilization)

	linesArr := obj.Name("lines").Array()
	for _, l := range r.Lines {
		lObj := linesArr.Object()
		lObj.Name("line_index").Int(l.LineIndex)
		lObj.Name("line_offset").Int(l.LineOffset)
		lObj.Name("bytes_used").Int(l.BytesUsed)
		lObj.Name("bytes_wasted").Int(l.BytesWasted)
		lObj.Name("utilization").Float64(l.Utilization)
		lObj.Name("is_split").Bool(l.IsSplit)
		lObj.Name("dominant_tag").String(l.DominantTag)
		tagsArr := lObj.Name("tags").Array()
		for _, t := range l.Tags {
			tagsArr.String(t)
		}
		tagsArr.End()
		lObj.End()
	}
	linesArr.End()

	obj.End()
	return w.Bytes(), w.Error()
}

// LayoutJSON renders r as a JSON object.
func LayoutJSON(r LayoutReport) ([]byte, error) {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("type_name").String(r.TypeName)
	obj.Name("total_size").Int(r.TotalSize)
	obj.Name("total_alignment").Int(r.TotalAlignment)
	obj.Name("useful_bytes").Int(r.UsefulBytes)
	obj.Name("padding_bytes").Int(r.PaddingBytes)
	obj.Name("tail_padding").Int(r.TailPadding)
	obj.Name("efficiency").Float64(r.Efficiency)

	fieldsArr := obj.Name("fields").Array()
	for _, f := range r.Fields {
		fObj := fieldsArr.Object()
		fObj.Name("name").String(f.Name)
		fObj.Name("offset").Int(f.Offset)
		fObj.Name("size").Int(f.Size)
		fObj.Name("alignment").Int(f.Alignment)
		fObj.Name("padding_before").Int(f.PaddingBefore)
		fObj.End()
	}
	fieldsArr.End()

	obj.End()
	return w.Bytes(), w.Error()
}

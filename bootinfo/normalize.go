package bootinfo

import "sort"

// NormalizeMemoryMap rewrites the raw firmware-provided segment list into the
// canonical form consumed by the physical allocator: segments sorted by
// ascending start address, gaps between reported segments filled in as
// occupied runs and adjacent same-state contiguous runs coalesced into a
// single entry. Zero-length segments are dropped.
//
// The input slice is sorted in place; the returned slice is freshly allocated
// as gap filling may produce more entries than the input contains.
func NormalizeMemoryMap(segments []MemorySegment) []MemorySegment {
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	var (
		out    = make([]MemorySegment, 0, 2*len(segments)+1)
		cursor uint64
	)

	for i := 0; i < len(segments); i++ {
		seg := segments[i]
		if seg.PageCount == 0 {
			continue
		}

		if seg.Start > cursor {
			out = appendRun(out, MemorySegment{
				Start:     cursor,
				PageCount: (seg.Start - cursor) / PageSize,
				State:     SegmentOccupied,
			})
		}

		out = appendRun(out, seg)
		cursor = seg.End()
	}

	return out
}

// appendRun appends seg to the segment list, merging it with the last entry
// when both describe contiguous memory in the same state.
func appendRun(segments []MemorySegment, seg MemorySegment) []MemorySegment {
	if last := len(segments) - 1; last >= 0 &&
		segments[last].State == seg.State &&
		segments[last].End() == seg.Start {
		segments[last].PageCount += seg.PageCount
		return segments
	}

	return append(segments, seg)
}

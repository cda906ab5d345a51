package bootinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMemoryMap(t *testing.T) {
	specs := []struct {
		descr string
		in    []MemorySegment
		exp   []MemorySegment
	}{
		{
			"empty input",
			nil,
			[]MemorySegment{},
		},
		{
			"gap before the first segment becomes an occupied run",
			[]MemorySegment{
				{Start: 16 * PageSize, PageCount: 16, State: SegmentFree},
			},
			[]MemorySegment{
				{Start: 0, PageCount: 16, State: SegmentOccupied},
				{Start: 16 * PageSize, PageCount: 16, State: SegmentFree},
			},
		},
		{
			"unsorted input is sorted by start address",
			[]MemorySegment{
				{Start: 8 * PageSize, PageCount: 8, State: SegmentOccupied},
				{Start: 0, PageCount: 8, State: SegmentFree},
			},
			[]MemorySegment{
				{Start: 0, PageCount: 8, State: SegmentFree},
				{Start: 8 * PageSize, PageCount: 8, State: SegmentOccupied},
			},
		},
		{
			"gap between segments is filled and merged with adjacent occupied runs",
			[]MemorySegment{
				{Start: 0, PageCount: 4, State: SegmentOccupied},
				{Start: 8 * PageSize, PageCount: 4, State: SegmentFree},
			},
			[]MemorySegment{
				{Start: 0, PageCount: 8, State: SegmentOccupied},
				{Start: 8 * PageSize, PageCount: 4, State: SegmentFree},
			},
		},
		{
			"contiguous same-state segments coalesce",
			[]MemorySegment{
				{Start: 0, PageCount: 4, State: SegmentFree},
				{Start: 4 * PageSize, PageCount: 4, State: SegmentFree},
				{Start: 8 * PageSize, PageCount: 4, State: SegmentOccupied},
			},
			[]MemorySegment{
				{Start: 0, PageCount: 8, State: SegmentFree},
				{Start: 8 * PageSize, PageCount: 4, State: SegmentOccupied},
			},
		},
		{
			"contiguous segments with different states stay separate",
			[]MemorySegment{
				{Start: 0, PageCount: 4, State: SegmentFree},
				{Start: 4 * PageSize, PageCount: 4, State: SegmentOccupied},
			},
			[]MemorySegment{
				{Start: 0, PageCount: 4, State: SegmentFree},
				{Start: 4 * PageSize, PageCount: 4, State: SegmentOccupied},
			},
		},
		{
			"zero-length segments are dropped",
			[]MemorySegment{
				{Start: 0, PageCount: 4, State: SegmentFree},
				{Start: 4 * PageSize, PageCount: 0, State: SegmentOccupied},
				{Start: 4 * PageSize, PageCount: 4, State: SegmentFree},
			},
			[]MemorySegment{
				{Start: 0, PageCount: 8, State: SegmentFree},
			},
		},
	}

	for specIndex, spec := range specs {
		assert.Equal(t, spec.exp, NormalizeMemoryMap(spec.in), "[spec %d] %s", specIndex, spec.descr)
	}
}

// Normalized maps must tile the address range with no gaps: every byte from
// zero to the end of the last segment belongs to exactly one segment.
func TestNormalizeMemoryMapCoverage(t *testing.T) {
	segments := NormalizeMemoryMap([]MemorySegment{
		{Start: 100 * PageSize, PageCount: 28, State: SegmentFree},
		{Start: 4 * PageSize, PageCount: 4, State: SegmentOccupied},
		{Start: 32 * PageSize, PageCount: 32, State: SegmentFree},
		{Start: 16 * PageSize, PageCount: 8, State: SegmentFree},
	})

	var cursor uint64
	for i, seg := range segments {
		assert.Equal(t, cursor, seg.Start, "segment %d leaves a gap", i)
		cursor = seg.End()
	}
	assert.EqualValues(t, 128*PageSize, cursor)
}

// Package bootinfo defines the binary contract between the bootloader and
// the kernel entry point. The loader fills in a single KernelHeader, converts
// its address to the higher memory half and passes it as the only argument of
// the kernel entry function. The header and the memory map array it points to
// are read-only for the kernel with one exception: the physical allocator may
// shrink a free segment while carving out space for its own bookkeeping.
//
// All structures in this package use architecture-native endianness and are
// laid out field for field as the loader writes them; they must not be
// reordered.
package bootinfo

import (
	"reflect"
	"unsafe"
)

// PageSize is the page granularity the handoff contract is expressed in.
// The loader and the kernel both assume 4096-byte pages.
const PageSize = 4096

// SegmentState describes whether a memory segment may be handed over to the
// physical page allocator.
type SegmentState uint32

const (
	// SegmentFree marks a segment that is free to be used by the kernel.
	SegmentFree SegmentState = iota

	// SegmentOccupied marks a segment that is reserved by firmware, device
	// mappings or the loaded kernel image itself.
	SegmentOccupied
)

// String implements fmt.Stringer for SegmentState.
func (s SegmentState) String() string {
	switch s {
	case SegmentFree:
		return "free"
	case SegmentOccupied:
		return "occupied"
	}
	return "unknown"
}

// MemorySegment describes a physically contiguous run of pages with a uniform
// free/occupied classification.
type MemorySegment struct {
	// Start contains the physical address of the first page in the segment.
	Start uint64

	// PageCount contains the number of 4096-byte pages in the segment.
	PageCount uint64

	// State indicates whether the segment is free to be used.
	State SegmentState
}

// End returns the physical address of the first byte past the segment.
func (seg *MemorySegment) End() uint64 {
	return seg.Start + seg.PageCount*PageSize
}

// PagingInfo describes the boot page table hierarchy constructed by the
// loader. The table identity-maps physical memory in the lower half of the
// virtual address space and mirrors the same mapping into the higher half.
type PagingInfo struct {
	// PageBuffer contains the address of the initial page table. The PML4
	// page comes first, followed by the PDP table pages and the PD table
	// pages.
	PageBuffer uint64

	// PDPPages contains the number of pages used for the page directory
	// pointer tables.
	PDPPages uint64

	// PDPages contains the number of pages used for the page directory
	// tables.
	PDPages uint64

	// PML4Entries contains the number of top-level entries required to
	// cover physical memory. The same entries appear mirrored at the top
	// of the PML4.
	PML4Entries uint64
}

// KernelHeader is the structure passed to the kernel entry point.
type KernelHeader struct {
	// ScreenBuffer contains the address of the framebuffer that can be
	// used to draw to the screen.
	ScreenBuffer uint64

	// ScreenWidth and ScreenHeight contain the framebuffer geometry in
	// pixels while ScreenScanlineWidth contains the width of a scanline
	// in pixels.
	ScreenWidth         uint32
	ScreenHeight        uint32
	ScreenScanlineWidth uint32

	// padding; keeps PagingInfo 8-byte aligned in the handoff layout.
	_ uint32

	// PagingInfo describes the boot page table hierarchy.
	PagingInfo PagingInfo

	// MemoryMap contains the address of an array of MemorySegment entries
	// describing the normalized physical memory layout while
	// MemoryMapEntries contains the number of entries in that array.
	MemoryMap        uint64
	MemoryMapEntries uint64

	// HighMemoryBase contains the base address of the physical memory
	// mirror in the higher memory half. ORing a physical address with
	// this value yields its higher-half virtual address.
	HighMemoryBase uint64
}

// MemoryMapSlice overlays a MemorySegment slice on top of the memory map
// array that the header points to. The header must contain an address that is
// mapped in the current address space.
func (h *KernelHeader) MemoryMapSlice() []MemorySegment {
	var segments []MemorySegment

	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&segments))
	hdr.Data = uintptr(h.MemoryMap)
	hdr.Len = int(h.MemoryMapEntries)
	hdr.Cap = hdr.Len

	return segments
}

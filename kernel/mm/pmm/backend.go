package pmm

import (
	"helios/bootinfo"
	"helios/kernel"
	"helios/kernel/mm"
)

// FreeEntry is the bookkeeping record for one free buddy block. Entries form
// a doubly-linked, unordered list per order; freed blocks are pushed to the
// front.
//
// An entry lives inside the physical memory it describes: a free block is its
// own free-list node until it gets allocated, at which point the caller
// overwrites the bytes. A page is therefore either a free-list node or
// caller-owned payload, never both.
type FreeEntry struct {
	order uint64
	next  *FreeEntry
	prev  *FreeEntry
}

// Backend abstracts where the allocator's own bookkeeping (the free-block
// bitmap and the FreeEntry storage) physically lives. The production backend
// places it inside the memory it describes; tests use host-allocated buffers
// so the allocator core never needs real physical memory.
type Backend interface {
	// Init prepares the bookkeeping storage for a memory map spanning
	// maxPages pages. Implementations may shrink a free segment in place
	// to carve out space for themselves and must fail if no segment can
	// hold the bookkeeping.
	Init(memoryMap []bootinfo.MemorySegment, maxPages uint64) *kernel.Error

	// Bitmap returns the free-block bitmap: one bit per page index, set
	// while that index is the start of some currently-free block. The
	// block's order is recorded in its FreeEntry; the bitmap alone cannot
	// determine it.
	Bitmap() []uint64

	// Entry returns the FreeEntry storage location for the block starting
	// at the supplied frame.
	Entry(frame mm.Frame) *FreeEntry

	// FrameOf returns the frame whose block entry describes. FrameOf and
	// Entry are mutual inverses over the valid frame range.
	FrameOf(entry *FreeEntry) mm.Frame
}

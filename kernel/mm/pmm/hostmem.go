package pmm

import (
	"unsafe"

	"helios/bootinfo"
	"helios/kernel"
	"helios/kernel/mm"
)

// HostedBackend keeps the allocator bookkeeping and the "physical" memory it
// describes in ordinary host-allocated buffers, with frame storage locations
// computed as offsets into the page buffer instead of hardware addresses. It
// exists so the allocator core can be exercised without real physical memory.
type HostedBackend struct {
	bitmap []uint64
	pages  []byte
}

// Init sizes the backing buffers to the supplied page count.
func (b *HostedBackend) Init(_ []bootinfo.MemorySegment, maxPages uint64) *kernel.Error {
	b.bitmap = make([]uint64, (maxPages+63)/64)
	b.pages = make([]byte, maxPages*mm.PageSize)
	return nil
}

// Bitmap returns the free-block bitmap.
func (b *HostedBackend) Bitmap() []uint64 {
	return b.bitmap
}

// Entry returns the FreeEntry stored at the frame's offset into the page
// buffer.
func (b *HostedBackend) Entry(frame mm.Frame) *FreeEntry {
	return (*FreeEntry)(unsafe.Pointer(&b.pages[frame.Address()]))
}

// FrameOf returns the frame whose page-buffer slot holds the supplied entry.
func (b *HostedBackend) FrameOf(entry *FreeEntry) mm.Frame {
	offset := uintptr(unsafe.Pointer(entry)) - uintptr(unsafe.Pointer(&b.pages[0]))
	return mm.Frame(offset >> mm.PageShift)
}

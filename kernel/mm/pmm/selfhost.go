package pmm

import (
	"reflect"
	"unsafe"

	"helios/bootinfo"
	"helios/kernel"
	"helios/kernel/mm"
	"helios/kernel/mm/vmm"
)

var (
	errNoBookkeepingSpace = &kernel.Error{Module: "pmm", Message: "no free segment large enough for the allocator bitmap"}

	// physToPtrFn and ptrToPhysFn convert between physical addresses and
	// higher-half pointers. They are hookable so the backend logic can be
	// tested against a host buffer instead of real physical memory.
	physToPtrFn = func(physAddr uint64) unsafe.Pointer {
		return unsafe.Pointer(uintptr(vmm.PhysToVirt(physAddr)))
	}
	ptrToPhysFn = func(p unsafe.Pointer) uint64 {
		return vmm.VirtToPhys(uint64(uintptr(p)))
	}
)

// SelfHostedBackend places the allocator bookkeeping inside the physical
// memory it describes. The bitmap occupies pages carved off the first free
// segment that can hold it; the FreeEntry for frame f is stored at physical
// address f<<PageShift, reached through the higher-half mirror. Beyond the
// bitmap pages the bookkeeping has no dedicated memory cost, at the price of
// free-block metadata only being readable through a virtual mapping.
//
// The higher-half translation must be active (vmm.SetHighMemBase) before the
// backend is initialized.
type SelfHostedBackend struct {
	bitmap []uint64
}

// Init carves the bitmap storage off the first free segment large enough to
// hold it, shrinking that segment in place so the carved pages are never
// handed to the allocator. Failing to find such a segment leaves the machine
// unusable.
func (b *SelfHostedBackend) Init(memoryMap []bootinfo.MemorySegment, maxPages uint64) *kernel.Error {
	var (
		words = (maxPages + 63) / 64
		pages = (words*8 + mm.PageSize - 1) / mm.PageSize
	)

	for i := range memoryMap {
		seg := &memoryMap[i]
		if seg.State != bootinfo.SegmentFree || seg.PageCount < pages {
			continue
		}

		bitmapAddr := seg.Start
		seg.Start += pages * mm.PageSize
		seg.PageCount -= pages

		hdr := (*reflect.SliceHeader)(unsafe.Pointer(&b.bitmap))
		hdr.Data = uintptr(physToPtrFn(bitmapAddr))
		hdr.Len = int(words)
		hdr.Cap = int(words)

		return nil
	}

	return errNoBookkeepingSpace
}

// Bitmap returns the free-block bitmap.
func (b *SelfHostedBackend) Bitmap() []uint64 {
	return b.bitmap
}

// Entry returns the FreeEntry stored inside the frame it describes.
func (b *SelfHostedBackend) Entry(frame mm.Frame) *FreeEntry {
	return (*FreeEntry)(physToPtrFn(frame.Address()))
}

// FrameOf returns the frame that stores the supplied entry.
func (b *SelfHostedBackend) FrameOf(entry *FreeEntry) mm.Frame {
	return mm.FrameFromAddress(ptrToPhysFn(unsafe.Pointer(entry)))
}

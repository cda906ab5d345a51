// Package pmm implements the kernel physical memory manager: a buddy
// allocator over the memory map delivered in the handoff header, with its
// bookkeeping stored inside the memory it manages.
package pmm

import (
	"helios/bootinfo"
	"helios/kernel"
	"helios/kernel/kfmt"
	"helios/kernel/mm"
)

var (
	// allocator is the global physical allocator instance. It is
	// initialized exactly once by Init; no other subsystem may allocate
	// before that.
	allocator BuddyAllocator

	selfHosted SelfHostedBackend
)

// Init sets up the kernel physical allocator from the memory map supplied in
// the handoff header. The self-hosted backend may shrink a free segment in
// place to carve out space for its bitmap before the segments are ingested.
// The higher-half translation must already be active.
func Init(header *bootinfo.KernelHeader) *kernel.Error {
	memoryMap := header.MemoryMapSlice()
	printMemoryMap(memoryMap)

	if err := allocator.Init(&selfHosted, memoryMap); err != nil {
		return err
	}

	kfmt.Printf("[pmm] free pages: %d\n", allocator.FreePageCount())
	return nil
}

// printMemoryMap logs the normalized memory map carried by the handoff
// header.
func printMemoryMap(memoryMap []bootinfo.MemorySegment) {
	kfmt.Printf("[pmm] physical memory map:\n")

	var totalFree uint64
	for i := range memoryMap {
		seg := &memoryMap[i]
		kfmt.Printf("\t[0x%10x - 0x%10x], pages: %8d, state: %s\n",
			seg.Start, seg.End(), seg.PageCount, seg.State.String())

		if seg.State == bootinfo.SegmentFree {
			totalFree += seg.PageCount
		}
	}

	kfmt.Printf("[pmm] available memory: %dKb\n", totalFree*mm.PageSize/1024)
}

// AllocPage reserves a single page and returns its physical address.
func AllocPage() (uint64, *kernel.Error) {
	return allocator.AllocPage()
}

// AllocLinearPages reserves a physically contiguous run that can hold count
// pages and returns the physical address of its first page.
func AllocLinearPages(count uint64) (uint64, *kernel.Error) {
	return allocator.AllocLinearPages(count)
}

// AllocPages reserves one page per slot of out; the pages are not guaranteed
// to be contiguous across slots.
func AllocPages(out []uint64) *kernel.Error {
	return allocator.AllocPages(out)
}

// FreePage releases a page previously returned by AllocPage.
func FreePage(addr uint64) {
	allocator.FreePage(addr)
}

// FreeLinearPages releases a run previously returned by AllocLinearPages
// with the same count.
func FreeLinearPages(addr uint64, count uint64) {
	allocator.FreeLinearPages(addr, count)
}

// FreePages releases a set of pages previously filled in by AllocPages.
func FreePages(addrs []uint64) {
	allocator.FreePages(addrs)
}

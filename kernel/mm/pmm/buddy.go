package pmm

import (
	"math/bits"

	"helios/bootinfo"
	"helios/kernel"
	"helios/kernel/mm"
	"helios/kernel/sync"
)

// MaxOrder defines the largest allocatable unit: a block of 2^MaxOrder
// (256) pages.
const MaxOrder = 8

var (
	errOutOfMemory    = &kernel.Error{Module: "pmm", Message: "out of memory"}
	errEmptyMemoryMap = &kernel.Error{Module: "pmm", Message: "memory map describes no physical memory"}
	errRunTooLarge    = &kernel.Error{Module: "pmm", Message: "requested page run exceeds the maximum block size"}
)

// SizeOrder returns the smallest order o such that a block of 2^o pages can
// hold count pages.
func SizeOrder(count uint64) uint64 {
	if count <= 1 {
		return 0
	}
	return uint64(bits.Len64(count - 1))
}

// BuddyAllocator tracks the free/occupied state of every physical page via a
// bitmap and one free list per order. A page index is either occupied (its
// bitmap bit clear) or the start of a free block of some order (bit set, a
// FreeEntry linked into that order's list); there are no other states.
//
// All mutations run under a single spinlock covering the complete
// lists-and-bitmap state; operations are totally ordered by lock acquisition.
type BuddyAllocator struct {
	lock sync.Spinlock

	backend Backend
	bitmap  []uint64

	// freeLists contains one list head per order.
	freeLists [MaxOrder + 1]*FreeEntry

	// maxPages bounds the frame range covered by the bitmap.
	maxPages uint64

	// freePages tracks the number of currently free pages for diagnostics.
	freePages uint64
}

// Init sets up the allocator for the supplied memory map. The backend is
// initialized first and may shrink a free segment in place to reserve its own
// bookkeeping space. All pages then start out occupied and every segment
// still marked free is ingested as free blocks.
//
// Init must complete before any other subsystem allocates; an unusable memory
// map is a fatal boot error.
func (a *BuddyAllocator) Init(backend Backend, memoryMap []bootinfo.MemorySegment) *kernel.Error {
	var maxAddress uint64
	for i := range memoryMap {
		if end := memoryMap[i].End(); end > maxAddress {
			maxAddress = end
		}
	}
	if maxAddress == 0 {
		return errEmptyMemoryMap
	}

	a.backend = backend
	a.maxPages = maxAddress >> mm.PageShift
	if err := backend.Init(memoryMap, a.maxPages); err != nil {
		return err
	}

	a.bitmap = backend.Bitmap()
	for i := range a.bitmap {
		a.bitmap[i] = 0
	}
	for order := range a.freeLists {
		a.freeLists[order] = nil
	}
	a.freePages = 0

	for i := range memoryMap {
		seg := &memoryMap[i]
		if seg.State != bootinfo.SegmentFree || seg.PageCount == 0 {
			continue
		}

		a.addRegion(mm.FrameFromAddress(seg.Start), seg.PageCount)
		a.freePages += seg.PageCount
	}

	return nil
}

// AllocPage reserves a single page and returns its physical address.
func (a *BuddyAllocator) AllocPage() (uint64, *kernel.Error) {
	a.lock.Acquire()
	frame, err := a.allocBlock(0)
	if err != nil {
		a.lock.Release()
		return 0, err
	}
	a.freePages--
	a.lock.Release()

	return frame.Address(), nil
}

// AllocLinearPages reserves a physically contiguous run that can hold count
// pages and returns the physical address of its first page. The reserved run
// is rounded up to 2^SizeOrder(count) pages; runs larger than a MaxOrder
// block cannot be satisfied.
func (a *BuddyAllocator) AllocLinearPages(count uint64) (uint64, *kernel.Error) {
	order := SizeOrder(count)
	if order > MaxOrder {
		return 0, errRunTooLarge
	}

	a.lock.Acquire()
	frame, err := a.allocBlock(order)
	if err != nil {
		a.lock.Release()
		return 0, err
	}
	a.freePages -= 1 << order
	a.lock.Release()

	return frame.Address(), nil
}

// AllocPages reserves one page per slot of out. Each slot is filled by an
// independent single-page allocation; the returned pages are NOT guaranteed
// to be contiguous across slots.
func (a *BuddyAllocator) AllocPages(out []uint64) *kernel.Error {
	a.lock.Acquire()
	for i := range out {
		frame, err := a.allocBlock(0)
		if err != nil {
			a.lock.Release()
			return err
		}
		a.freePages--
		out[i] = frame.Address()
	}
	a.lock.Release()

	return nil
}

// FreePage releases a page previously returned by AllocPage. The allocator
// trusts its callers: addr must be such an address, and freeing anything else
// (or freeing twice) corrupts the allocator state without detection.
func (a *BuddyAllocator) FreePage(addr uint64) {
	a.lock.Acquire()
	a.freeBlock(mm.FrameFromAddress(addr), 0)
	a.freePages++
	a.lock.Release()
}

// FreeLinearPages releases a run previously returned by AllocLinearPages with
// the same count. The caller-trust contract of FreePage applies.
func (a *BuddyAllocator) FreeLinearPages(addr uint64, count uint64) {
	order := SizeOrder(count)

	a.lock.Acquire()
	a.freeBlock(mm.FrameFromAddress(addr), order)
	a.freePages += 1 << order
	a.lock.Release()
}

// FreePages releases a set of pages previously filled in by AllocPages. The
// caller-trust contract of FreePage applies.
func (a *BuddyAllocator) FreePages(addrs []uint64) {
	a.lock.Acquire()
	for _, addr := range addrs {
		a.freeBlock(mm.FrameFromAddress(addr), 0)
		a.freePages++
	}
	a.lock.Release()
}

// FreePageCount returns the number of currently free pages.
func (a *BuddyAllocator) FreePageCount() uint64 {
	a.lock.Acquire()
	free := a.freePages
	a.lock.Release()
	return free
}

// addRegion greedily decomposes an arbitrary, possibly misaligned run of
// pages into maximal aligned power-of-two blocks and frees each one. Input
// segments follow firmware and image-layout boundaries and carry no
// power-of-two guarantee.
func (a *BuddyAllocator) addRegion(frame mm.Frame, pageCount uint64) {
	for pageCount > 0 {
		order := uint64(bits.TrailingZeros64(uint64(frame)))
		if maxFit := uint64(bits.Len64(pageCount)) - 1; maxFit < order {
			order = maxFit
		}
		if order > MaxOrder {
			order = MaxOrder
		}

		a.freeBlock(frame, order)

		frame += mm.Frame(1) << order
		pageCount -= 1 << order
	}
}

// freeBlock marks the block of the given order starting at frame as free,
// recursively merging it with its buddy while possible. A merge requires the
// buddy's bitmap bit to be set AND the buddy's recorded order to match: a
// free neighbour of a different size may satisfy the XOR relationship at
// another order and must not be merged with.
func (a *BuddyAllocator) freeBlock(frame mm.Frame, order uint64) {
	if order < MaxOrder {
		buddy := frame ^ (mm.Frame(1) << order)
		if a.bitSet(buddy) && a.backend.Entry(buddy).order == order {
			a.clearBit(buddy)
			a.unlink(a.backend.Entry(buddy), order)
			a.freeBlock(frame&^(mm.Frame(1)<<order), order+1)
			return
		}
	}

	a.pushFree(frame, order)
}

// allocBlock reserves one block of the requested order. When the order's list
// is empty a block of the next order up is split: its upper buddy half goes
// back to the free list and its base half is handed to the caller. Running
// out of MaxOrder blocks is unrecoverable at this layer.
func (a *BuddyAllocator) allocBlock(order uint64) (mm.Frame, *kernel.Error) {
	if entry := a.freeLists[order]; entry != nil {
		frame := a.backend.FrameOf(entry)
		a.unlink(entry, order)
		a.clearBit(frame)
		return frame, nil
	}

	if order == MaxOrder {
		return mm.InvalidFrame, errOutOfMemory
	}

	frame, err := a.allocBlock(order + 1)
	if err != nil {
		return mm.InvalidFrame, err
	}

	a.pushFree(frame+(mm.Frame(1)<<order), order)
	return frame, nil
}

// pushFree records a free block: bitmap bit set, FreeEntry written into the
// block's storage location and pushed to the front of its order's list.
func (a *BuddyAllocator) pushFree(frame mm.Frame, order uint64) {
	a.setBit(frame)

	entry := a.backend.Entry(frame)
	entry.order = order
	entry.prev = nil
	entry.next = a.freeLists[order]
	if entry.next != nil {
		entry.next.prev = entry
	}
	a.freeLists[order] = entry
}

// unlink removes an entry from its order's free list.
func (a *BuddyAllocator) unlink(entry *FreeEntry, order uint64) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		a.freeLists[order] = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	}
}

func (a *BuddyAllocator) bitSet(frame mm.Frame) bool {
	if uint64(frame) >= a.maxPages {
		return false
	}
	return a.bitmap[frame>>6]&(1<<(frame&63)) != 0
}

func (a *BuddyAllocator) setBit(frame mm.Frame) {
	a.bitmap[frame>>6] |= 1 << (frame & 63)
}

func (a *BuddyAllocator) clearBit(frame mm.Frame) {
	a.bitmap[frame>>6] &^= 1 << (frame & 63)
}

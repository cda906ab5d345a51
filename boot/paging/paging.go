// Package paging constructs the boot page table hierarchy: an identity
// mapping of all physical memory in the lower virtual half, mirrored into the
// higher half by aliasing the top-level entries. The hierarchy uses 2MiB
// large-page leaves at the page directory level so no page-table level ever
// needs to be populated.
package paging

import (
	"reflect"
	"unsafe"

	"helios/bootinfo"
	"helios/kernel"
	"helios/kernel/cpu"
	"helios/kernel/kfmt"
	"helios/kernel/mm"
)

const (
	// entryPresent and entryRW mark a table entry as mapped and writable.
	entryPresent = 1 << 0
	entryRW      = 1 << 1

	// entryLargePage marks a page directory entry as a 2MiB leaf.
	entryLargePage = 1 << 7

	// Address-field masks for the three populated table levels. An entry
	// address that does not survive its mask indicates a size computation
	// bug, not a runtime condition.
	pml4AddrMask = 0x000F_FFFF_FFFF_F000
	pdpAddrMask  = 0x000F_FFFF_FFFF_F000
	pdAddrMask   = 0x000F_FFFF_FFE0_0000

	// usableAddrMask truncates the physical size to the 47 bits that fit
	// into half of the 48-bit virtual address space. Physical memory can
	// theoretically span 52 bits, which does not fit.
	usableAddrMask = 0x0000_7FFF_FFFF_FFFF

	// tableEntries is the number of 8-byte entries in one table page.
	tableEntries = 512

	// highHalfBase selects the sign-extended upper virtual range.
	highHalfBase = 0xFFFF_0000_0000_0000

	pml4Shift = 39
	pdpShift  = 30
	pdShift   = 21
)

var (
	errPML4TooLarge    = &kernel.Error{Module: "paging", Message: "top-level table exceeds one page; address-space width miscalculation"}
	errEntryMisaligned = &kernel.Error{Module: "paging", Message: "page table entry address field misaligned"}

	// switchPDTFn is used by tests to override calls to cpu.SwitchPDT
	// which would fault in user-mode.
	switchPDTFn = cpu.SwitchPDT

	// ptrFn converts a physical address to a pointer. While the loader
	// runs, firmware keeps everything identity mapped; tests point this
	// at a host buffer instead.
	ptrFn = func(physAddr uint64) unsafe.Pointer {
		return unsafe.Pointer(uintptr(physAddr))
	}
)

// AllocPagesFn reserves a physically contiguous run of pages and returns the
// address of its first page.
type AllocPagesFn func(pageCount uint64) (uint64, *kernel.Error)

// Build constructs the boot page tables covering physicalSize bytes of
// memory 1:1 and returns the paging metadata for the handoff header together
// with the higher-half base address: the single OR-able constant that maps
// any covered physical address to its mirrored virtual address.
//
// The table storage is one contiguous run: the PML4 page first, then the PDP
// table pages, then the PD table pages. For each of the N top-level entries
// required, the identical entry value is written to slot i and to slot
// 512-N+i, so both halves reach the same lower-level tables without doubling
// table memory.
func Build(physicalSize uint64, allocFn AllocPagesFn) (bootinfo.PagingInfo, uint64, *kernel.Error) {
	physicalSize &= usableAddrMask

	pml4Entries := physicalSize>>pml4Shift + 1
	pdpEntries := physicalSize>>pdpShift + 1
	pdEntries := physicalSize>>pdShift + 1

	pml4Pages := pagesFor(pml4Entries)
	pdpPages := pagesFor(pdpEntries)
	pdPages := pagesFor(pdEntries)
	totalPages := pml4Pages + pdpPages + pdPages

	// With 48 bits of virtual address space the top level can never
	// outgrow its single fixed page.
	if pml4Pages != 1 {
		return bootinfo.PagingInfo{}, 0, errPML4TooLarge
	}

	kfmt.Printf("[paging] covering 0x%x bytes with %d table pages (pdp: %d, pd: %d)\n",
		physicalSize, totalPages, pdpPages, pdPages)

	bufferAddr, err := allocFn(totalPages)
	if err != nil {
		return bootinfo.PagingInfo{}, 0, err
	}

	// Firmware does not guarantee zeroed pages and any entry left
	// unwritten must be non-present.
	kernel.Memset(uintptr(ptrFn(bufferAddr)), 0, uintptr(totalPages*mm.PageSize))

	var table []uint64
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&table))
	hdr.Data = uintptr(ptrFn(bufferAddr))
	hdr.Len = int(totalPages * tableEntries)
	hdr.Cap = hdr.Len

	// Top level: slot i and its high-half alias receive the same pointer
	// to PDP table page i.
	for i := uint64(0); i < pml4Entries; i++ {
		entryAddr := bufferAddr + (pml4Pages+i)*mm.PageSize
		if entryAddr&pml4AddrMask != entryAddr {
			return bootinfo.PagingInfo{}, 0, errEntryMisaligned
		}

		entry := entryAddr | entryPresent | entryRW
		table[i] = entry
		table[tableEntries-pml4Entries+i] = entry
	}

	// PDP pointer entries to the PD table pages.
	for i := uint64(0); i < pdpEntries; i++ {
		entryAddr := bufferAddr + (pml4Pages+pdpPages+i)*mm.PageSize
		if entryAddr&pdpAddrMask != entryAddr {
			return bootinfo.PagingInfo{}, 0, errEntryMisaligned
		}

		table[pml4Pages*tableEntries+i] = entryAddr | entryPresent | entryRW
	}

	// 2MiB leaf entries, each computed purely from its position.
	for i := uint64(0); i < pdEntries; i++ {
		entryAddr := i << pdShift
		if entryAddr&pdAddrMask != entryAddr {
			return bootinfo.PagingInfo{}, 0, errEntryMisaligned
		}

		table[(pml4Pages+pdpPages)*tableEntries+i] = entryAddr | entryPresent | entryRW | entryLargePage
	}

	highMemBase := uint64(highHalfBase) | ((tableEntries - pml4Entries) << pml4Shift)
	kfmt.Printf("[paging] high memory base: 0x%16x\n", highMemBase)

	info := bootinfo.PagingInfo{
		PageBuffer:  bufferAddr,
		PDPPages:    pdpPages,
		PDPages:     pdPages,
		PML4Entries: pml4Entries,
	}

	return info, highMemBase, nil
}

// Activate loads the top-level table into the page-table-base register. The
// write implicitly invalidates all translation caches.
func Activate(info *bootinfo.PagingInfo) {
	switchPDTFn(info.PageBuffer)
}

// pagesFor returns the number of pages needed to store the given number of
// 8-byte table entries.
func pagesFor(entries uint64) uint64 {
	return (entries*8 + mm.PageSize - 1) / mm.PageSize
}

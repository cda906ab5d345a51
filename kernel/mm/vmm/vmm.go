package vmm

import (
	"reflect"
	"unsafe"

	"helios/bootinfo"
	"helios/kernel"
	"helios/kernel/cpu"
	"helios/kernel/kfmt"
)

var (
	errNoPagingInfo = &kernel.Error{Module: "vmm", Message: "handoff header carries no paging information"}

	// switchPDTFn is used by tests to override calls to cpu.SwitchPDT
	// which would fault in user-mode.
	switchPDTFn = cpu.SwitchPDT

	// ptrFn is used by tests to redirect page-table memory accesses to a
	// host buffer.
	ptrFn = func(virtAddr uint64) unsafe.Pointer {
		return unsafe.Pointer(uintptr(virtAddr))
	}
)

// Init takes over the boot page tables built by the loader. The kernel runs
// entirely in the higher half, so the low-half identity entries of the
// top-level table are dropped and the table is re-activated, leaving only the
// mirrored mapping live.
//
// SetHighMemBase must have been called first; the PML4 is reached through the
// higher-half mirror.
func Init(info *bootinfo.PagingInfo) *kernel.Error {
	if info.PageBuffer == 0 || info.PML4Entries == 0 {
		return errNoPagingInfo
	}

	kfmt.Printf("[vmm] high memory base: 0x%16x\n", highMemBase)
	kfmt.Printf("[vmm] pml4 at physical address 0x%16x\n", info.PageBuffer)

	var pml4 []uint64
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&pml4))
	hdr.Data = uintptr(ptrFn(PhysToVirt(info.PageBuffer)))
	hdr.Len = int(info.PML4Entries)
	hdr.Cap = hdr.Len

	for i := range pml4 {
		pml4[i] = 0
	}

	switchPDTFn(info.PageBuffer)
	return nil
}

// Package kmain contains the kernel entry point invoked by the loader
// handoff.
package kmain

import (
	"helios/bootinfo"
	"helios/kernel"
	"helios/kernel/cpu"
	"helios/kernel/irq"
	"helios/kernel/kfmt"
	"helios/kernel/mm/pmm"
	"helios/kernel/mm/vmm"
)

// haltFn is used by tests to override cpu.Halt.
var haltFn = cpu.Halt

// Kmain is invoked by the loader with a higher-half pointer to the handoff
// header. The bring-up order is fixed: the translation base first, since
// everything after it converts physical addresses through the mirror, then
// the physical allocator, then the page-table takeover, then interrupts.
//
// Kmain does not return.
func Kmain(header *bootinfo.KernelHeader) {
	kfmt.Printf("[kmain] kernel starting\n")

	vmm.SetHighMemBase(header.HighMemoryBase)

	if err := pmm.Init(header); err != nil {
		fatal(err)
	}

	if err := vmm.Init(&header.PagingInfo); err != nil {
		fatal(err)
	}

	if err := irq.Init(); err != nil {
		fatal(err)
	}

	kfmt.Printf("[kmain] init complete\n")

	for {
		haltFn()
	}
}

// fatal reports an unrecoverable boot error and parks the CPU. There is
// nothing to unwind to this early.
func fatal(err *kernel.Error) {
	kfmt.Printf("[%s] fatal: %s\n", err.Module, err.Message)

	for {
		haltFn()
	}
}

// Package irq sets up interrupt handling. Its memory needs are the first
// real exercise of the physical allocator: a page for the descriptor table,
// a contiguous run for the main interrupt stack and a set of per-exception
// stacks that need no physical contiguity at all.
package irq

import (
	"helios/kernel"
	"helios/kernel/kfmt"
	"helios/kernel/mm"
	"helios/kernel/mm/pmm"
	"helios/kernel/mm/vmm"
)

const (
	// vectorCount is the number of interrupt vectors the descriptor table
	// describes.
	vectorCount = 256

	// istStackCount is the number of dedicated exception stacks the CPU
	// can switch to via the interrupt stack table.
	istStackCount = 7

	// intStackPages is the size of the main interrupt stack.
	intStackPages = 4
)

// InterruptNum identifies an interrupt vector.
type InterruptNum uint8

// HandlerFn is invoked when its registered vector fires.
type HandlerFn func(vector InterruptNum)

var (
	errAlreadyInitialized = &kernel.Error{Module: "irq", Message: "interrupts already initialized"}

	handlers [vectorCount]HandlerFn

	// idtAddr is the higher-half address of the descriptor table page.
	idtAddr uint64

	// intStackTop is the higher-half address one past the main interrupt
	// stack; stacks grow down.
	intStackTop uint64

	// istStackTops holds the top address of each dedicated exception
	// stack.
	istStackTops [istStackCount]uint64

	// Allocation and vector installation hooks; tests swap these out so
	// no descriptor table is ever loaded on the host.
	allocPageFn        = pmm.AllocPage
	allocLinearPagesFn = pmm.AllocLinearPages
	allocPagesFn       = pmm.AllocPages
	installVectorsFn   = installVectors
)

// Init carves the interrupt bookkeeping memory out of the physical allocator
// and installs the vector table. It must run after the physical and virtual
// memory managers are up; all recorded addresses are higher-half.
func Init() *kernel.Error {
	if idtAddr != 0 {
		return errAlreadyInitialized
	}

	idtPhys, err := allocPageFn()
	if err != nil {
		return err
	}
	idtAddr = vmm.PhysToVirt(idtPhys)

	stackPhys, err := allocLinearPagesFn(intStackPages)
	if err != nil {
		return err
	}
	intStackTop = vmm.PhysToVirt(stackPhys) + intStackPages*mm.PageSize

	// The CPU enters each exception stack from its top; the stacks are
	// never addressed as a block so the pages need not be contiguous.
	var istPages [istStackCount]uint64
	if err = allocPagesFn(istPages[:]); err != nil {
		return err
	}
	for i, addr := range istPages {
		istStackTops[i] = vmm.PhysToVirt(addr) + mm.PageSize
	}

	kfmt.Printf("[irq] idt at 0x%16x, interrupt stack top 0x%16x\n", idtAddr, intStackTop)

	installVectorsFn()
	return nil
}

// HandleInterrupt registers handler for the given vector, replacing any
// previous registration.
func HandleInterrupt(vector InterruptNum, handler HandlerFn) {
	handlers[vector] = handler
}

// Dispatch routes a fired vector to its registered handler. Unhandled
// vectors are logged and ignored; at this stage of bring-up a spurious
// interrupt is not worth halting over.
func Dispatch(vector InterruptNum) {
	if handler := handlers[vector]; handler != nil {
		handler(vector)
		return
	}

	kfmt.Printf("[irq] unhandled interrupt %d\n", uint8(vector))
}

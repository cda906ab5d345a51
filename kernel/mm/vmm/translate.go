// Package vmm owns the kernel side of the virtual memory bootstrap: the
// physical/virtual translation pair derived from the higher-half mirror that
// the loader established, and the takeover of the boot page tables.
package vmm

// highMemBase is the base address of the physical memory mirror in the
// higher memory half. It is written once from the handoff header before any
// translation takes place and is read-only thereafter.
var highMemBase uint64

// SetHighMemBase records the higher-half base address delivered in the
// handoff header. It must be called before PhysToVirt or VirtToPhys and
// before any subsystem that depends on them initializes.
func SetHighMemBase(base uint64) {
	highMemBase = base
}

// HighMemBase returns the higher-half base address.
func HighMemBase() uint64 {
	return highMemBase
}

// PhysToVirt returns the higher-half virtual address mapping the supplied
// physical address. It is valid only for addresses inside the
// identity-mirrored region built by the loader; the result is undefined for
// anything else.
func PhysToVirt(physAddr uint64) uint64 {
	return physAddr | highMemBase
}

// VirtToPhys returns the physical address backing the supplied higher-half
// virtual address. The validity contract of PhysToVirt applies.
func VirtToPhys(virtAddr uint64) uint64 {
	return virtAddr &^ highMemBase
}

// Package cpu provides access to the privileged amd64 instructions that the
// memory management code depends on.
package cpu

// SwitchPDT sets the page-table-base register (CR3) to the supplied physical
// address. Writing to CR3 implicitly invalidates all TLB entries.
func SwitchPDT(pdtPhysAddr uint64)

// Halt stops instruction execution until the next interrupt arrives.
func Halt()

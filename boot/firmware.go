package boot

import "helios/kernel"

// RegionType classifies a firmware-reported memory region.
type RegionType uint32

const (
	// RegionAvailable marks conventional memory the OS may use freely
	// once boot services have been exited.
	RegionAvailable RegionType = iota

	// RegionReserved marks memory owned by firmware, devices or the
	// loaded images; it must never be handed to the allocator.
	RegionReserved
)

// MemRegion describes one physical memory range reported by the firmware.
// Region extents are byte-granular; the loader rounds them to pages while
// normalizing the map.
type MemRegion struct {
	PhysAddress uint64
	Length      uint64
	Type        RegionType
}

// MemRegionVisitor is invoked for each firmware memory region. Returning
// false stops the enumeration.
type MemRegionVisitor func(region *MemRegion) bool

// Framebuffer describes the linear framebuffer handed to the kernel.
type Framebuffer struct {
	Address       uint64
	Width         uint32
	Height        uint32
	ScanlineWidth uint32
}

// Firmware abstracts the boot services the loader consumes: memory
// enumeration, page allocation, boot volume access, display mode selection
// and the final release of the machine. Implementations wrap the platform
// firmware and are not covered by this package.
type Firmware interface {
	// VisitMemRegions invokes visitor for each memory region in the
	// firmware memory map until the visitor returns false.
	VisitMemRegions(visitor MemRegionVisitor)

	// AllocPages reserves a physically contiguous run of pages and
	// returns the address of its first page.
	AllocPages(pageCount uint64) (uint64, *kernel.Error)

	// ReadFile loads the raw bytes of the named boot volume file.
	ReadFile(name string) ([]byte, *kernel.Error)

	// SelectVideoMode switches the display to the widest available linear
	// framebuffer mode no wider than maxWidth and describes it.
	SelectVideoMode(maxWidth uint32) (Framebuffer, *kernel.Error)

	// ExitBootServices terminates firmware ownership of the machine.
	// After a successful return only memory contents and CPU state
	// remain; no firmware service may be called again.
	ExitBootServices() *kernel.Error
}

// ImageSizeFn returns the size a raw kernel image occupies in memory once
// loaded, which may exceed the file size.
type ImageSizeFn func(image []byte) uint64

// PrepareImageFn relocates a raw kernel image into the supplied buffer and
// returns the address of its entry point.
type PrepareImageFn func(image []byte, buffer uint64) (uint64, *kernel.Error)

// HandoffFn transfers control to the kernel entry point passing the header
// address as the single pointer-sized argument. It does not return.
type HandoffFn func(headerAddr, entryPoint uint64)

// Package boot implements the loader side of the boot protocol. The loader
// gathers machine state through the collapsed firmware surface, builds the
// boot page tables, relocates the kernel image and transfers control to its
// entry point with a single KernelHeader pointer.
package boot

import (
	"unsafe"

	"helios/boot/paging"
	"helios/bootinfo"
	"helios/kernel"
	"helios/kernel/kfmt"
	"helios/kernel/mm"
)

const (
	// kernelImagePath is the boot volume location of the kernel image.
	kernelImagePath = "EFI\\BOOT\\kernel.sys"

	// maxScreenWidth caps video mode selection; virtual machines tend to
	// offer absurdly wide modes when left unbounded.
	maxScreenWidth = 1920
)

var (
	errNoPhysicalMemory  = &kernel.Error{Module: "loader", Message: "firmware reported no physical memory"}
	errMemoryMapOverflow = &kernel.Error{Module: "loader", Message: "normalized memory map exceeds its reserved storage"}

	// ptrFn converts a physical address to a pointer. Firmware keeps
	// everything identity mapped while the loader runs; tests point this
	// at host buffers.
	ptrFn = func(physAddr uint64) unsafe.Pointer {
		return unsafe.Pointer(uintptr(physAddr))
	}

	// buildTablesFn and activateFn are used by tests to stub out the page
	// table construction and the table switch which would fault in
	// user-mode.
	buildTablesFn = paging.Build
	activateFn    = paging.Activate
)

// Loader drives the boot sequence.
type Loader struct {
	fw           Firmware
	imageSize    ImageSizeFn
	prepareImage PrepareImageFn
	handoff      HandoffFn
}

// NewLoader returns a Loader wired to the supplied firmware surface and
// image handling collaborators.
func NewLoader(fw Firmware, imageSize ImageSizeFn, prepareImage PrepareImageFn, handoff HandoffFn) *Loader {
	return &Loader{
		fw:           fw,
		imageSize:    imageSize,
		prepareImage: prepareImage,
		handoff:      handoff,
	}
}

// Boot runs the boot sequence to completion. It returns only when a fatal
// error prevents the handoff.
func (l *Loader) Boot() *kernel.Error {
	if err := l.boot(); err != nil {
		kfmt.Printf("[%s] fatal: %s\n", err.Module, err.Message)
		return err
	}
	return nil
}

func (l *Loader) boot() *kernel.Error {
	kfmt.Printf("[loader] initializing\n")

	physicalSize := l.physicalSize()
	if physicalSize == 0 {
		return errNoPhysicalMemory
	}

	pagingInfo, highMemBase, err := buildTablesFn(physicalSize, l.fw.AllocPages)
	if err != nil {
		return err
	}

	// The new tables contain the same identity mapping the loader is
	// running on, so they can go live right away.
	activateFn(&pagingInfo)

	headerAddr, err := l.fw.AllocPages(1)
	if err != nil {
		return err
	}
	header := (*bootinfo.KernelHeader)(ptrFn(headerAddr))
	*header = bootinfo.KernelHeader{
		PagingInfo:     pagingInfo,
		HighMemoryBase: highMemBase,
	}

	fb, err := l.fw.SelectVideoMode(maxScreenWidth)
	if err != nil {
		return err
	}
	header.ScreenBuffer = fb.Address
	header.ScreenWidth = fb.Width
	header.ScreenHeight = fb.Height
	header.ScreenScanlineWidth = fb.ScanlineWidth

	entryPoint, err := l.loadKernelImage(highMemBase)
	if err != nil {
		return err
	}

	if err = l.writeMemoryMap(header, highMemBase); err != nil {
		return err
	}

	kfmt.Printf("[loader] starting kernel (entry point 0x%16x)\n", entryPoint)

	if err = l.fw.ExitBootServices(); err != nil {
		return err
	}

	l.handoff(highMemBase|headerAddr, entryPoint)
	return nil
}

// physicalSize returns the highest physical address reported by the
// firmware memory map.
func (l *Loader) physicalSize() uint64 {
	var maxAddr uint64
	l.fw.VisitMemRegions(func(region *MemRegion) bool {
		if end := region.PhysAddress + region.Length; end > maxAddr {
			maxAddr = end
		}
		return true
	})

	return maxAddr
}

// loadKernelImage reads the kernel image from the boot volume and relocates
// it into a higher-half buffer, returning the entry point address.
func (l *Loader) loadKernelImage(highMemBase uint64) (uint64, *kernel.Error) {
	image, err := l.fw.ReadFile(kernelImagePath)
	if err != nil {
		return 0, err
	}

	memSize := l.imageSize(image)
	kfmt.Printf("[loader] kernel image: %d bytes on disk, %d in memory\n", len(image), memSize)

	bufferAddr, err := l.fw.AllocPages((memSize + mm.PageSize - 1) / mm.PageSize)
	if err != nil {
		return 0, err
	}

	return l.prepareImage(image, highMemBase|bufferAddr)
}

// writeMemoryMap normalizes the firmware memory map into the handoff format
// and stores the segment array in reserved pages the kernel will see as
// occupied. The storage is reserved before the final map enumeration so the
// array itself can never end up inside a segment handed to the allocator.
func (l *Loader) writeMemoryMap(header *bootinfo.KernelHeader, highMemBase uint64) *kernel.Error {
	var regionCount uint64
	l.fw.VisitMemRegions(func(*MemRegion) bool {
		regionCount++
		return true
	})

	// Normalization can at worst insert one occupied gap run per region
	// plus a leading one.
	maxEntries := 2*regionCount + 1
	arrayBytes := maxEntries * uint64(unsafe.Sizeof(bootinfo.MemorySegment{}))
	arrayAddr, err := l.fw.AllocPages((arrayBytes + mm.PageSize - 1) / mm.PageSize)
	if err != nil {
		return err
	}

	raw := make([]bootinfo.MemorySegment, 0, regionCount)
	l.fw.VisitMemRegions(func(region *MemRegion) bool {
		if seg := regionToSegment(region); seg.PageCount != 0 {
			raw = append(raw, seg)
		}
		return true
	})

	segments := bootinfo.NormalizeMemoryMap(raw)
	if uint64(len(segments)) > maxEntries {
		return errMemoryMapOverflow
	}

	if len(segments) > 0 {
		kernel.Memcopy(
			uintptr(unsafe.Pointer(&segments[0])),
			uintptr(ptrFn(arrayAddr)),
			uintptr(len(segments))*unsafe.Sizeof(bootinfo.MemorySegment{}),
		)
	}

	header.MemoryMap = highMemBase | arrayAddr
	header.MemoryMapEntries = uint64(len(segments))
	return nil
}

// regionToSegment converts one firmware region to a page-granular memory
// segment. Available regions are rounded inward so a partial page never
// reaches the allocator; reserved regions are rounded outward.
func regionToSegment(region *MemRegion) bootinfo.MemorySegment {
	var (
		pageMask   = uint64(mm.PageSize - 1)
		start, end uint64
		state      bootinfo.SegmentState
	)

	if region.Type == RegionAvailable {
		start = (region.PhysAddress + pageMask) &^ pageMask
		end = (region.PhysAddress + region.Length) &^ pageMask
		state = bootinfo.SegmentFree
	} else {
		start = region.PhysAddress &^ pageMask
		end = (region.PhysAddress + region.Length + pageMask) &^ pageMask
		state = bootinfo.SegmentOccupied
	}

	if end <= start {
		return bootinfo.MemorySegment{}
	}

	return bootinfo.MemorySegment{
		Start:     start,
		PageCount: (end - start) / mm.PageSize,
		State:     state,
	}
}

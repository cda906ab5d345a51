package pmm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios/bootinfo"
	"helios/kernel/mm"
)

// fakePhysMemory redirects the backend's physical address translation hooks
// into a host buffer spanning pageCount pages and returns the buffer together
// with a restore function.
func fakePhysMemory(pageCount uint64) ([]byte, func()) {
	var (
		buf  = make([]byte, pageCount*mm.PageSize)
		base = uintptr(unsafe.Pointer(&buf[0]))

		origPhysToPtr = physToPtrFn
		origPtrToPhys = ptrToPhysFn
	)

	physToPtrFn = func(physAddr uint64) unsafe.Pointer {
		return unsafe.Pointer(base + uintptr(physAddr))
	}
	ptrToPhysFn = func(p unsafe.Pointer) uint64 {
		return uint64(uintptr(p) - base)
	}

	return buf, func() {
		physToPtrFn = origPhysToPtr
		ptrToPhysFn = origPtrToPhys
	}
}

func TestSelfHostedBackendCarvesBitmap(t *testing.T) {
	buf, restore := fakePhysMemory(64)
	defer restore()

	memoryMap := []bootinfo.MemorySegment{
		occupiedSeg(0, 8),
		freeSeg(8, 56),
	}

	var backend SelfHostedBackend
	require.Nil(t, backend.Init(memoryMap, 64))

	// One bitmap word covers 64 pages; its single page comes off the
	// front of the free segment.
	assert.EqualValues(t, 9*mm.PageSize, memoryMap[1].Start)
	assert.EqualValues(t, 55, memoryMap[1].PageCount)
	assert.Len(t, backend.Bitmap(), 1)
	assert.Equal(t, unsafe.Pointer(&buf[8*mm.PageSize]), unsafe.Pointer(&backend.Bitmap()[0]))
}

func TestSelfHostedBackendEntryRoundTrip(t *testing.T) {
	buf, restore := fakePhysMemory(64)
	defer restore()

	memoryMap := []bootinfo.MemorySegment{freeSeg(0, 64)}

	var backend SelfHostedBackend
	require.Nil(t, backend.Init(memoryMap, 64))

	for _, frame := range []mm.Frame{1, 2, 42, 63} {
		entry := backend.Entry(frame)
		assert.Equal(t, unsafe.Pointer(&buf[frame.Address()]), unsafe.Pointer(entry))
		assert.Equal(t, frame, backend.FrameOf(entry))
	}
}

func TestSelfHostedBackendNoBookkeepingSpace(t *testing.T) {
	_, restore := fakePhysMemory(64)
	defer restore()

	var backend SelfHostedBackend

	assert.Equal(t, errNoBookkeepingSpace, backend.Init([]bootinfo.MemorySegment{occupiedSeg(0, 64)}, 64))
}

func TestSelfHostedAllocatorEndToEnd(t *testing.T) {
	_, restore := fakePhysMemory(64)
	defer restore()

	memoryMap := []bootinfo.MemorySegment{freeSeg(0, 64)}

	var (
		alloc   BuddyAllocator
		backend SelfHostedBackend
	)
	require.Nil(t, alloc.Init(&backend, memoryMap))

	// The bitmap page is carved off before ingestion, leaving 63 pages.
	require.EqualValues(t, 63, alloc.FreePageCount())

	addr, err := alloc.AllocLinearPages(4)
	require.Nil(t, err)
	assert.EqualValues(t, 4*mm.PageSize, addr)
	assert.EqualValues(t, 59, alloc.FreePageCount())

	alloc.FreeLinearPages(addr, 4)
	assert.EqualValues(t, 63, alloc.FreePageCount())
}

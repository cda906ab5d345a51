package pmm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios/bootinfo"
	"helios/kernel/mm"
)

func TestInitFromHandoffHeader(t *testing.T) {
	_, restore := fakePhysMemory(64)
	defer restore()

	segments := []bootinfo.MemorySegment{
		occupiedSeg(0, 8),
		freeSeg(8, 56),
	}
	header := &bootinfo.KernelHeader{
		MemoryMap:        uint64(uintptr(unsafe.Pointer(&segments[0]))),
		MemoryMapEntries: uint64(len(segments)),
	}

	require.Nil(t, Init(header))

	// One page went to the allocator bitmap.
	assert.EqualValues(t, 55, allocator.FreePageCount())

	addr, err := AllocPage()
	require.Nil(t, err)
	assert.GreaterOrEqual(t, addr, uint64(9*mm.PageSize))

	linearAddr, err := AllocLinearPages(3)
	require.Nil(t, err)
	assert.Zero(t, linearAddr%(4*mm.PageSize), "linear run should be aligned to its block size")

	addrs := make([]uint64, 2)
	require.Nil(t, AllocPages(addrs))
	assert.EqualValues(t, 48, allocator.FreePageCount())

	FreePage(addr)
	FreeLinearPages(linearAddr, 3)
	FreePages(addrs)
	assert.EqualValues(t, 55, allocator.FreePageCount())
}

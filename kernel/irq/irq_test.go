package irq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios/kernel"
	"helios/kernel/mm"
	"helios/kernel/mm/vmm"
)

// fakeAllocators wires the allocation hooks to a bump allocator over a fake
// physical address range and disables the vector installation. It returns the
// number of vector installs observed via the returned counter pointer and a
// restore function.
func fakeAllocators(t *testing.T) (*int, func()) {
	t.Helper()

	var (
		origAllocPage        = allocPageFn
		origAllocLinearPages = allocLinearPagesFn
		origAllocPages       = allocPagesFn
		origInstallVectors   = installVectorsFn

		nextAddr = uint64(0x10000)
		installs int
	)

	allocPageFn = func() (uint64, *kernel.Error) {
		addr := nextAddr
		nextAddr += mm.PageSize
		return addr, nil
	}
	allocLinearPagesFn = func(count uint64) (uint64, *kernel.Error) {
		addr := nextAddr
		nextAddr += count * mm.PageSize
		return addr, nil
	}
	allocPagesFn = func(out []uint64) *kernel.Error {
		for i := range out {
			out[i] = nextAddr
			nextAddr += mm.PageSize
		}
		return nil
	}
	installVectorsFn = func() { installs++ }

	return &installs, func() {
		allocPageFn = origAllocPage
		allocLinearPagesFn = origAllocLinearPages
		allocPagesFn = origAllocPages
		installVectorsFn = origInstallVectors

		idtAddr = 0
		intStackTop = 0
		istStackTops = [istStackCount]uint64{}
		vmm.SetHighMemBase(0)
	}
}

func TestInitCarvesInterruptMemory(t *testing.T) {
	installs, restore := fakeAllocators(t)
	defer restore()

	const base = uint64(0xffffff8000000000)
	vmm.SetHighMemBase(base)

	require.Nil(t, Init())

	assert.Equal(t, base|0x10000, idtAddr)
	assert.Equal(t, base|0x11000+intStackPages*mm.PageSize, intStackTop)
	for i, top := range istStackTops {
		exp := base | uint64(0x15000+(i+1)*mm.PageSize)
		assert.Equal(t, exp, top, "ist stack %d", i)
	}
	assert.Equal(t, 1, *installs)
}

func TestInitRunsOnce(t *testing.T) {
	_, restore := fakeAllocators(t)
	defer restore()

	require.Nil(t, Init())
	assert.Equal(t, errAlreadyInitialized, Init())
}

func TestInitPropagatesAllocError(t *testing.T) {
	_, restore := fakeAllocators(t)
	defer restore()

	errNoPages := &kernel.Error{Module: "test", Message: "no pages"}
	allocLinearPagesFn = func(uint64) (uint64, *kernel.Error) {
		return 0, errNoPages
	}

	assert.Equal(t, errNoPages, Init())
}

func TestDispatch(t *testing.T) {
	defer func() { handlers[32] = nil }()

	var fired []InterruptNum
	HandleInterrupt(32, func(vector InterruptNum) {
		fired = append(fired, vector)
	})

	Dispatch(32)
	Dispatch(33) // unhandled; logged and ignored
	Dispatch(32)

	assert.Equal(t, []InterruptNum{32, 32}, fired)
}

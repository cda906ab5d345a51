package irq

import "unsafe"

const (
	// kernelCodeSelector is the GDT selector the gate entries run under.
	kernelCodeSelector = 0x08

	// gatePresentInterrupt marks a gate as a present DPL0 interrupt gate.
	gatePresentInterrupt = 0x8e00
)

// gateDescriptor is one 16-byte interrupt gate.
type gateDescriptor struct {
	offsetLow  uint16
	selector   uint16
	flags      uint16
	offsetMid  uint16
	offsetHigh uint32
	_          uint32
}

// installVectors points every gate in the freshly allocated descriptor table
// at the common entry stub and loads the table.
//
// TODO: emit per-vector stubs so Dispatch receives the vector number instead
// of the stub parking the CPU.
func installVectors() {
	table := (*[vectorCount]gateDescriptor)(unsafe.Pointer(uintptr(idtAddr)))
	entry := gateEntryAddr()

	for i := range table {
		table[i] = gateDescriptor{
			offsetLow:  uint16(entry),
			selector:   kernelCodeSelector,
			flags:      gatePresentInterrupt,
			offsetMid:  uint16(entry >> 16),
			offsetHigh: uint32(entry >> 32),
		}
	}

	// The descriptor register wants a packed 10-byte limit/base pair which
	// no Go struct layout can express.
	var desc [10]byte
	limit := uint16(vectorCount*unsafe.Sizeof(gateDescriptor{}) - 1)
	desc[0] = byte(limit)
	desc[1] = byte(limit >> 8)
	for i := uintptr(0); i < 8; i++ {
		desc[2+i] = byte(idtAddr >> (8 * i))
	}
	loadIDT(&desc)
}

// loadIDT loads the packed descriptor into the interrupt descriptor table
// register.
func loadIDT(desc *[10]byte)

// gateEntryAddr returns the address of the common interrupt entry stub.
func gateEntryAddr() uint64

// interruptGate is the common interrupt entry stub; it parks the CPU.
func interruptGate()

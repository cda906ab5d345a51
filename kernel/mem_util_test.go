package kernel

import (
	"testing"
	"unsafe"
)

func TestMemset(t *testing.T) {
	for _, size := range []int{0, 1, 3, 64, 4096} {
		buf := make([]byte, size+16)
		for i := range buf {
			buf[i] = 0xff
		}

		var addr uintptr
		if size > 0 {
			addr = uintptr(unsafe.Pointer(&buf[0]))
		}
		Memset(addr, 0xaa, uintptr(size))

		for i := 0; i < size; i++ {
			if buf[i] != 0xaa {
				t.Fatalf("size %d: byte %d not set", size, i)
			}
		}
		for i := size; i < len(buf); i++ {
			if buf[i] != 0xff {
				t.Fatalf("size %d: byte %d past the region was touched", size, i)
			}
		}
	}
}

func TestMemcopy(t *testing.T) {
	src := make([]byte, 129)
	for i := range src {
		src[i] = byte(i)
	}
	dst := make([]byte, len(src))

	Memcopy(uintptr(unsafe.Pointer(&src[0])), uintptr(unsafe.Pointer(&dst[0])), uintptr(len(src)))

	for i := range dst {
		if dst[i] != byte(i) {
			t.Fatalf("byte %d: expected %d; got %d", i, byte(i), dst[i])
		}
	}
}

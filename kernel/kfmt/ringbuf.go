package kfmt

import "io"

// ringBufferSize defines the size of the buffer holding early Printf output.
// It must always be a power of 2.
const ringBufferSize = 2048

// ringBuffer buffers Printf output produced before the console sink is
// registered. Once the buffer fills up, new writes overwrite the oldest
// buffered bytes.
type ringBuffer struct {
	data  [ringBufferSize]byte
	start int
	used  int
}

// Write writes len(p) bytes from p to the ring buffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[(rb.start+rb.used)&(ringBufferSize-1)] = b
		if rb.used == ringBufferSize {
			rb.start = (rb.start + 1) & (ringBufferSize - 1)
		} else {
			rb.used++
		}
	}

	return len(p), nil
}

// Read reads up to len(p) buffered bytes into p. It returns io.EOF when the
// buffer has been fully drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.used == 0 {
		return 0, io.EOF
	}

	var n int
	for ; n < len(p) && rb.used > 0; n++ {
		p[n] = rb.data[rb.start]
		rb.start = (rb.start + 1) & (ringBufferSize - 1)
		rb.used--
	}

	return n, nil
}

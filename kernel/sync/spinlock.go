// Package sync provides the synchronization primitives available to the
// early kernel. No scheduler exists at this layer so none of the primitives
// may sleep; waiters busy-spin until the resource becomes available.
package sync

import "sync/atomic"

var (
	// yieldFn is invoked between spin attempts while waiting for a held
	// lock. It is nil while the kernel boots; tests point it at
	// runtime.Gosched to avoid livelocks on the host.
	yieldFn func()
)

// Spinlock implements a test-and-set lock where each task trying to acquire
// it busy-waits till the lock becomes available. Acquire provides acquire
// ordering and Release provides release ordering.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for atomic.SwapUint32(&l.state, 1) != 0 {
		for atomic.LoadUint32(&l.state) != 0 {
			if yieldFn != nil {
				yieldFn()
			}
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

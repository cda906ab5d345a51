package sync

import (
	"runtime"
	stdsync "sync"
	"testing"
)

func TestSpinlockMutualExclusion(t *testing.T) {
	defer func() { yieldFn = nil }()
	yieldFn = runtime.Gosched

	var (
		l       Spinlock
		wg      stdsync.WaitGroup
		counter int
	)

	numWorkers := 8 * runtime.NumCPU()
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Acquire()
				counter++
				l.Release()
			}
		}()
	}
	wg.Wait()

	if exp := numWorkers * 100; counter != exp {
		t.Fatalf("expected counter to be %d; got %d", exp, counter)
	}
}

func TestSpinlockTryToAcquire(t *testing.T) {
	var l Spinlock

	if !l.TryToAcquire() {
		t.Fatal("expected TryToAcquire to succeed on a free lock")
	}
	if l.TryToAcquire() {
		t.Fatal("expected TryToAcquire to fail on a held lock")
	}

	l.Release()
	if !l.TryToAcquire() {
		t.Fatal("expected TryToAcquire to succeed after a release")
	}
}

package mutex

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"corekernel/src/defs"
	"corekernel/src/thread"
)

var bootOnce sync.Once

func bootScheduler() {
	bootOnce.Do(func() { go thread.Sched.Boot() })
}

// runThread starts a new Thread running body and returns it, already
// woken onto the scheduler's run queue.
func runThread(body func(ctx context.Context, t *thread.Thread)) *thread.Thread {
	var th *thread.Thread
	th = thread.New(thread.NextTid(), 0, func(t *thread.Thread) {
		body(thread.WithThread(context.Background(), t), t)
	})
	th.Start()
	th.Wake()
	return th
}

func TestMutexFIFOHandoff(t *testing.T) {
	bootScheduler()
	m := New()

	var order []int
	var mu sync.Mutex
	record := func(i int) {
		mu.Lock()
		order = append(order, i)
		mu.Unlock()
	}

	held := make(chan struct{})
	var release int32

	// First thread takes the lock and yields the simulated CPU voluntarily
	// (a raw channel receive would never hand control back to the
	// scheduler, since Thread.Yield/Block are the only cooperative
	// handoff points it recognizes) until told to release.
	runThread(func(ctx context.Context, th *thread.Thread) {
		if err := m.Lock(ctx); err != 0 {
			t.Errorf("first Lock: %v", err)
		}
		record(0)
		close(held)
		for atomic.LoadInt32(&release) == 0 {
			th.Yield()
		}
		if err := m.Unlock(ctx); err != 0 {
			t.Errorf("first Unlock: %v", err)
		}
	})
	<-held

	// Two more threads queue up in order; each should acquire in the
	// order it called Lock.
	done := make(chan struct{}, 2)
	for i := 1; i <= 2; i++ {
		i := i
		runThread(func(ctx context.Context, _ *thread.Thread) {
			if err := m.Lock(ctx); err != 0 {
				t.Errorf("Lock %d: %v", i, err)
			}
			record(i)
			m.Unlock(ctx)
			done <- struct{}{}
		})
		time.Sleep(10 * time.Millisecond) // let it enqueue as a waiter before the next one
	}

	atomic.StoreInt32(&release, 1)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("waiter never acquired the mutex")
		}
	}

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("acquisition order = %v, want [0 1 2]", order)
	}
}

func TestUnlockByNonOwnerFails(t *testing.T) {
	bootScheduler()
	m := New()
	errc := make(chan defs.Err_t, 1)
	runThread(func(ctx context.Context, t *thread.Thread) {
		errc <- m.Unlock(ctx)
	})
	select {
	case err := <-errc:
		if err == 0 {
			t.Fatalf("Unlock by non-owner = %v, want EPERM", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Unlock never returned")
	}
}

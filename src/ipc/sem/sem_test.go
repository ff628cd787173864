package sem

import (
	"context"
	"sync"
	"testing"
	"time"

	"corekernel/src/thread"
)

var bootOnce sync.Once

func bootScheduler() {
	bootOnce.Do(func() { go thread.Sched.Boot() })
}

func runThread(body func(ctx context.Context, t *thread.Thread)) *thread.Thread {
	var th *thread.Thread
	th = thread.New(thread.NextTid(), 0, func(t *thread.Thread) {
		body(thread.WithThread(context.Background(), t), t)
	})
	th.Start()
	th.Wake()
	return th
}

func TestDownConsumesAnAlreadyAvailableUnit(t *testing.T) {
	bootScheduler()
	s := New(1)
	done := make(chan struct{})
	runThread(func(ctx context.Context, t *thread.Thread) {
		s.Down(ctx)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Down never returned with count already positive")
	}
}

func TestDownBlocksUntilUp(t *testing.T) {
	bootScheduler()
	s := New(0)
	done := make(chan struct{})
	runThread(func(ctx context.Context, t *thread.Thread) {
		s.Down(ctx)
		close(done)
	})

	select {
	case <-done:
		t.Fatal("Down returned before Up was ever called")
	case <-time.After(50 * time.Millisecond):
	}

	s.Up()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Down never woke up after Up")
	}
}

func TestUpWakesOldestWaiterFirst(t *testing.T) {
	bootScheduler()
	s := New(0)

	var mu sync.Mutex
	var order []int
	woken := make(chan struct{}, 2)

	for i := 1; i <= 2; i++ {
		i := i
		runThread(func(ctx context.Context, t *thread.Thread) {
			s.Down(ctx)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			woken <- struct{}{}
		})
		time.Sleep(10 * time.Millisecond) // ensure thread 1 queues before thread 2
	}

	s.Up()
	select {
	case <-woken:
	case <-time.After(2 * time.Second):
		t.Fatal("first waiter never woke")
	}

	mu.Lock()
	got := append([]int(nil), order...)
	mu.Unlock()
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("after one Up, order = %v, want [1]", got)
	}

	s.Up()
	select {
	case <-woken:
	case <-time.After(2 * time.Second):
		t.Fatal("second waiter never woke")
	}
}

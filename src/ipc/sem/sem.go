// Package sem implements Semaphore (spec §4.8): a counting semaphore whose
// Down blocks while the count is zero and whose Up releases the oldest
// waiter first. New code, same owner-free FIFO-waiter shape as
// src/ipc/mutex, since no teacher precedent exists for a userspace
// semaphore kobj.
package sem

import (
	"context"
	"sync"

	"corekernel/src/defs"
	"corekernel/src/thread"
)

/// Sem is a kernel object wrapping a counting semaphore.
type Sem struct {
	mu      sync.Mutex
	count   int
	waiters []*thread.Thread
}

/// New returns a Sem initialized to count.
func New(count int) *Sem {
	return &Sem{count: count}
}

func (s *Sem) Close() defs.Err_t {
	return 0
}

/// Up increments the count and wakes the oldest waiter, if any.
func (s *Sem) Up() {
	s.mu.Lock()
	s.count++
	var next *thread.Thread
	if len(s.waiters) > 0 {
		next = s.waiters[0]
		s.waiters = s.waiters[1:]
	}
	s.mu.Unlock()
	if next != nil {
		next.Wake()
	}
}

/// Down blocks the calling thread (taken from ctx) until the count is
/// positive, then consumes one unit.
func (s *Sem) Down(ctx context.Context) {
	t, ok := thread.FromContext(ctx)
	if !ok {
		panic("sem.Down: context carries no thread")
	}
	for {
		s.mu.Lock()
		if s.count > 0 {
			s.count--
			s.mu.Unlock()
			return
		}
		s.waiters = append(s.waiters, t)
		s.mu.Unlock()
		t.Block()
	}
}

// Package mutex implements Mutex (spec §4.8): an owned lock that blocks a
// contending thread until the owner releases it, with FIFO wakeup order.
// No teacher precedent exists for a userspace-visible mutex kobj (the
// teacher's own kernel-internal locks are plain sync.Mutex); this is new
// code using the same owner-plus-FIFO-waiter-list shape as
// src/ipc/pipe and src/ipc/sem, built on the thread package's explicit
// Block/Wake handoff.
package mutex

import (
	"context"
	"sync"

	"corekernel/src/defs"
	"corekernel/src/thread"
)

/// Mutex is a kernel object wrapping a single owned lock.
type Mutex struct {
	mu      sync.Mutex
	owner   *thread.Thread
	waiters []*thread.Thread
}

/// New returns an unlocked Mutex.
func New() *Mutex {
	return &Mutex{}
}

func (m *Mutex) Close() defs.Err_t {
	return 0
}

/// Lock blocks the calling thread (taken from ctx) until it becomes the
/// owner. A Lock from the thread that already owns the mutex returns 0 at
/// once; no recursion count is kept, so a single Unlock releases it.
func (m *Mutex) Lock(ctx context.Context) defs.Err_t {
	t, ok := thread.FromContext(ctx)
	if !ok {
		return -defs.EINVAL
	}
	for {
		m.mu.Lock()
		// m.owner == t happens when Unlock hands ownership directly to this
		// thread as the next FIFO waiter, before waking it.
		if m.owner == nil || m.owner == t {
			m.owner = t
			m.mu.Unlock()
			return 0
		}
		m.waiters = append(m.waiters, t)
		m.mu.Unlock()
		t.Block()
	}
}

/// Unlock releases the mutex and wakes the next FIFO waiter, if any.
/// Unlocking by a thread that is not the owner fails with EPERM.
func (m *Mutex) Unlock(ctx context.Context) defs.Err_t {
	t, ok := thread.FromContext(ctx)
	if !ok {
		return -defs.EINVAL
	}
	m.mu.Lock()
	if m.owner != t {
		m.mu.Unlock()
		return -defs.EPERM
	}
	var next *thread.Thread
	if len(m.waiters) > 0 {
		next = m.waiters[0]
		m.waiters = m.waiters[1:]
	}
	m.owner = next
	m.mu.Unlock()
	if next != nil {
		next.Wake()
	}
	return 0
}

// Package kobj implements KObj, the kernel's polymorphic capability object
// (spec §4.6), and HandleTable, the per-process table mapping small
// integer handles to them. Adapted from the teacher's fd package: where
// the teacher's Fd_t wraps a single Fdops_i (the file-descriptor
// operation set) behind one fixed interface, this kernel's KObj widens
// that idea to the whole capability surface spec §4.6 names — read,
// write, async wait, mutex, shared memory, process, and deferred-result
// objects — by exposing each as an optional capability an object may
// implement, discovered with a type assertion (the idiomatic Go analogue
// of downcasting an `Arc<dyn KObj>` in the original Rust).
package kobj

import (
	"context"
	"sync"
	"sync/atomic"

	"corekernel/src/defs"
	"corekernel/src/fdops"
)

/// KObj is the minimal capability every kernel object exposes: a handle
/// can always be closed, releasing whatever resource backs it.
type KObj interface {
	Close() defs.Err_t
}

// Blocking capability methods take a context.Context carrying the calling
// *thread.Thread (see package thread's WithThread/FromContext) rather than
// an implicit per-goroutine current-thread lookup, since this kernel runs
// on a stock Go runtime (see DESIGN.md "Runtime model").

/// Reader is implemented by objects that support a blocking read, e.g.
/// Pipe's read end (spec §4.8).
type Reader interface {
	Read(ctx context.Context, dst fdops.Userio_i) (int, defs.Err_t)
}

/// Writer is implemented by objects that support a blocking write, e.g.
/// Pipe's write end.
type Writer interface {
	Write(ctx context.Context, src fdops.Userio_i) (int, defs.Err_t)
}

/// AsyncReader is implemented by objects that can report readiness without
/// blocking, backing a future async_read-style syscall.
type AsyncReader interface {
	TryRead(dst fdops.Userio_i) (int, defs.Err_t, bool)
}

/// Locker is implemented by mutex objects (spec §4.8 Mutex): Lock blocks
/// the calling thread until ownership is acquired; Unlock releases it and
/// fails with EPERM if the caller didn't hold it.
type Locker interface {
	Lock(ctx context.Context) defs.Err_t
	Unlock(ctx context.Context) defs.Err_t
}

/// Signaler is implemented by semaphore objects (spec §4.8 Semaphore).
type Signaler interface {
	Up()
	Down(ctx context.Context)
}

/// SharedMem is implemented by shm.Block and reports the block's size in
/// pages. Mapping goes through shm.Block.Map, which is not part of this
/// interface.
type SharedMem interface {
	Pages() int
}

/// ProcessHandle is implemented by the object representing another
/// process, letting the holder wait for its exit status. Wait takes ctx
/// (carrying the calling thread, same convention as Locker/Signaler) so
/// it can block via Block/Wake instead of a raw channel wait.
type ProcessHandle interface {
	Wait(ctx context.Context) int
	Pid() defs.Pid_t
}

/// Handle wraps a KObj with the reference count needed to support dup
/// (spec §4.6: duplicating a handle must not require reopening the
/// underlying object, unlike the teacher's Copyfd/Cwd_t path reopen
/// convention — objects here are already refcounted, so dup is just
/// Refup).
type Handle struct {
	Obj  KObj
	refs int32
}

func newHandle(obj KObj) *Handle {
	return &Handle{Obj: obj, refs: 1}
}

func (h *Handle) refup() {
	atomic.AddInt32(&h.refs, 1)
}

// refdown returns true when the last reference is dropped.
func (h *Handle) refdown() bool {
	return atomic.AddInt32(&h.refs, -1) == 0
}

/// HandleTable is a process's dense table of open handles, adapted from
/// the teacher's Fd_t slice-of-pointers-with-a-free-list convention.
type HandleTable struct {
	mu      sync.Mutex
	handles []*Handle // nil entries are free slots
}

/// NewHandleTable returns an empty handle table.
func NewHandleTable() *HandleTable {
	return &HandleTable{}
}

/// Insert adds obj to the table and returns its handle number.
func (ht *HandleTable) Insert(obj KObj) defs.Handle_t {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	h := newHandle(obj)
	for i, e := range ht.handles {
		if e == nil {
			ht.handles[i] = h
			return defs.Handle_t(i)
		}
	}
	ht.handles = append(ht.handles, h)
	return defs.Handle_t(len(ht.handles) - 1)
}

/// Get returns the object named by hn, or EBADF.
func (ht *HandleTable) Get(hn defs.Handle_t) (KObj, defs.Err_t) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if int(hn) < 0 || int(hn) >= len(ht.handles) || ht.handles[hn] == nil {
		return nil, -defs.EBADF
	}
	return ht.handles[hn].Obj, 0
}

/// Dup increments the refcount on hn's underlying Handle and installs it
/// under a new handle number pointing at the same object.
func (ht *HandleTable) Dup(hn defs.Handle_t) (defs.Handle_t, defs.Err_t) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if int(hn) < 0 || int(hn) >= len(ht.handles) || ht.handles[hn] == nil {
		return 0, -defs.EBADF
	}
	h := ht.handles[hn]
	h.refup()
	for i, e := range ht.handles {
		if e == nil {
			ht.handles[i] = h
			return defs.Handle_t(i), 0
		}
	}
	ht.handles = append(ht.handles, h)
	return defs.Handle_t(len(ht.handles) - 1), 0
}

/// Close drops hn. The underlying object's Close runs only once the last
/// duplicate is closed.
func (ht *HandleTable) Close(hn defs.Handle_t) defs.Err_t {
	ht.mu.Lock()
	if int(hn) < 0 || int(hn) >= len(ht.handles) || ht.handles[hn] == nil {
		ht.mu.Unlock()
		return -defs.EBADF
	}
	h := ht.handles[hn]
	ht.handles[hn] = nil
	last := h.refdown()
	ht.mu.Unlock()
	if last {
		return h.Obj.Close()
	}
	return 0
}

/// Inherit copies the named handles from parent into a fresh table for a
/// newly spawned process (spec §6: process inheritance is explicit, not
/// automatic), refup'ing each one.
func (ht *HandleTable) Inherit(parent *HandleTable, names []defs.Handle_t) {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	ht.mu.Lock()
	defer ht.mu.Unlock()
	for _, hn := range names {
		if int(hn) < 0 || int(hn) >= len(parent.handles) || parent.handles[hn] == nil {
			continue
		}
		h := parent.handles[hn]
		h.refup()
		for len(ht.handles) <= int(hn) {
			ht.handles = append(ht.handles, nil)
		}
		ht.handles[hn] = h
	}
}

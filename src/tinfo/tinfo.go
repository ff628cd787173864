// Package tinfo tracks per-thread debug/kill state, adapted from the
// teacher's tinfo package. The teacher locates "the current thread" via
// runtime.Gptr/Setgptr, hooks into a patched Go runtime that stashes a
// pointer on the g struct. This module runs on a stock Go runtime, so the
// idiomatic replacement is to carry the owning *Thread explicitly (see
// src/thread, which stores a *Tnote_t on every Thread and threads it
// through context.Context at suspension points) rather than fetch it from
// hidden per-goroutine storage.
package tinfo

import "sync"

import "corekernel/src/defs"

/// Tnote_t stores per-thread state used by the scheduler and the kill path.
type Tnote_t struct {
	Alive    bool
	Killed   bool
	Isdoomed bool
	// protects Killed, Killnaps.Cond and Kerr, and is a leaf lock
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
}

/// Doomed reports whether the thread is marked as doomed.
func (t *Tnote_t) Doomed() bool {
	return t.Isdoomed
}

/// Threadinfo_t tracks all thread notes, keyed by thread id.
type Threadinfo_t struct {
	Notes map[defs.Tid_t]*Tnote_t
	sync.Mutex
}

/// Init initializes the thread info map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

/// Add registers a new thread note under tid.
func (t *Threadinfo_t) Add(tid defs.Tid_t, n *Tnote_t) {
	t.Lock()
	t.Notes[tid] = n
	t.Unlock()
}

/// Remove forgets the thread note for tid.
func (t *Threadinfo_t) Remove(tid defs.Tid_t) {
	t.Lock()
	delete(t.Notes, tid)
	t.Unlock()
}

/// Get returns the thread note for tid, if any.
func (t *Threadinfo_t) Get(tid defs.Tid_t) (*Tnote_t, bool) {
	t.Lock()
	defer t.Unlock()
	n, ok := t.Notes[tid]
	return n, ok
}

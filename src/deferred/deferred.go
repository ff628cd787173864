// Package deferred implements Deferred[A] (spec §4.5): a single-assignment
// future that one or more threads can block on and exactly one writer
// resolves. There is no teacher precedent for a generic promise type, so
// this follows the same wait/signal shape the teacher uses for blocking on
// a thread event (tinfo.Tnote_t's Killnaps: a mutex-guarded value plus a
// channel closed to broadcast the transition), generalized with Go 1.18+
// generics instead of a type-specific struct.
package deferred

import "sync"

/// Deferred holds a value of type A that is resolved at most once and can
/// be waited on by any number of goroutines (spec §4.5: a thread blocked
/// on a Deferred is parked until another thread resolves it).
type Deferred[A any] struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	val      A
	waiters  []func(A) // then() callbacks registered before resolution
}

/// New returns an unresolved Deferred.
func New[A any]() *Deferred[A] {
	return &Deferred[A]{done: make(chan struct{})}
}

/// Assertions gates the second-resolve panic (spec §9 Open Question: the
/// spec leaves double-resolve semantics as a documented non-panic no-op in
/// production builds, and an assertion failure in debug builds).
var Assertions = false

/// Resolve assigns val and wakes every waiter, in registration order for
/// then() callbacks. A second call is a silent no-op unless Assertions is
/// set, in which case it panics.
func (d *Deferred[A]) Resolve(val A) {
	d.mu.Lock()
	if d.resolved {
		d.mu.Unlock()
		if Assertions {
			panic("deferred: double resolve")
		}
		return
	}
	d.val = val
	d.resolved = true
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()
	close(d.done)
	// then() callbacks run synchronously on the resolving goroutine, in
	// the order they were registered.
	for _, f := range waiters {
		f(val)
	}
}

/// Resolved reports whether Resolve has been called.
func (d *Deferred[A]) Resolved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolved
}

/// Wait blocks the calling goroutine until the Deferred is resolved and
/// returns its value. Safe to call from many goroutines at once.
func (d *Deferred[A]) Wait() A {
	<-d.done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.val
}

/// Done returns a channel closed when the Deferred resolves, for use in a
/// select alongside other blocking sources (e.g. a thread kill channel).
func (d *Deferred[A]) Done() <-chan struct{} {
	return d.done
}

/// Then registers f to run with the resolved value. If already resolved,
/// f runs synchronously before Then returns; otherwise it runs on whatever
/// goroutine eventually calls Resolve.
func (d *Deferred[A]) Then(f func(A)) {
	d.mu.Lock()
	if d.resolved {
		val := d.val
		d.mu.Unlock()
		f(val)
		return
	}
	d.waiters = append(d.waiters, f)
	d.mu.Unlock()
}

// Package limits tracks system-wide resource budgets, adapted from the
// teacher's limits package: each budget is an atomically updated counter
// that callers Take() from before creating a resource and Give() back to
// on destruction. Exhaustion is reported to the caller (spec §7), never
// silently retried.
package limits

import "unsafe"
import "sync/atomic"

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}

/// Cur returns the current remaining budget.
func (s *Sysatomic_t) Cur() int64 {
	return atomic.LoadInt64(s._aptr())
}

// Syslimit_t tracks system-wide resource limits for this kernel's domain:
// processes, threads, and the IPC objects of spec §4.8. There is no
// persistent filesystem or network stack, so the teacher's Vnodes,
// Arpents, Routes, and Tcpsegs fields have no home here.
type Syslimit_t struct {
	Sysprocs Sysatomic_t
	Threads  Sysatomic_t
	// Socks counts pipes, mutexes, and semaphores together, mirroring
	// the teacher's pooling of "sockets and pipes" under one budget.
	Socks Sysatomic_t
	// Shmblocks bounds concurrently live SharedMemBlock objects.
	Shmblocks Sysatomic_t
	// Shmpgs bounds total frames held across all SharedMemBlocks.
	Shmpgs Sysatomic_t
}

/// Syslimit describes the configured system wide limits.
var Syslimit = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs:  1e4,
		Threads:   1e5,
		Socks:     1e5,
		Shmblocks: 1e4,
		Shmpgs:    1 << 18,
	}
}

// Package thread implements the kernel's cooperative thread and scheduler
// (spec §4.4): one global FIFO run queue and one goroutine per Thread,
// handed the "CPU" by the scheduler one at a time through a synchronous
// resume/yield handoff — never two threads' kernel code running at once,
// which is what "cooperative, uniprocessor" (spec §1 Non-goals: no SMP, no
// preemptive timeslicing) means here. An explicit *Thread is passed to
// blocking operations instead of fetched from runtime-private
// per-goroutine storage (see DESIGN.md "Runtime model"). There is no
// scheduler package in the retrieved teacher tree to adapt; the wait/wake
// shape follows the one precedent the teacher does show for parking a
// goroutine on an event: tinfo.Tnote_t's Killnaps channel.
package thread

import (
	"fmt"
	"sync"
	"sync/atomic"

	"corekernel/src/accnt"
	"corekernel/src/caller"
	"corekernel/src/defs"
	"corekernel/src/tinfo"
)

var tidNext int64

/// NextTid returns a fresh, system-wide unique Tid_t.
func NextTid() defs.Tid_t {
	return defs.Tid_t(atomic.AddInt64(&tidNext, 1))
}

/// State_t is a thread's scheduling state.
type State_t int

const (
	Runnable State_t = iota
	Running
	Blocked
	Dead
)

/// Thread is one kernel thread. resume/yield are unbuffered: the scheduler
/// sends on resume to hand this thread the CPU and then blocks receiving
/// on yield until the thread either calls Block or returns from Entry,
/// giving the CPU back.
type Thread struct {
	Tid   defs.Tid_t
	Pid   defs.Pid_t
	Note  *tinfo.Tnote_t
	Accnt *accnt.Accnt_t

	mu    sync.Mutex
	state State_t

	resume chan struct{}
	yield  chan struct{}

	/// Entry is the thread's body, run on its own goroutine once the
	/// scheduler first resumes it.
	Entry func(t *Thread)

	/// Symbolicate names a faulting address for the crash report Start
	/// prints when Entry panics with a uintptr (spec §6 EXPANSION: demangled
	/// symbol resolution on the exit_thread(-line) crash path). Optional;
	/// set by src/proc from the spawned program's ELF symbol table.
	Symbolicate func(uintptr) string

	/// Disassemble decodes the instruction at a faulting address, for the
	/// same crash report. Optional; returns ok=false when nothing is
	/// decodable there.
	Disassemble func(uintptr) (text string, ok bool)
}

/// New constructs a Thread in the Runnable state, not yet started.
func New(tid defs.Tid_t, pid defs.Pid_t, entry func(t *Thread)) *Thread {
	return &Thread{
		Tid:    tid,
		Pid:    pid,
		Note:   &tinfo.Tnote_t{Alive: true},
		Accnt:  &accnt.Accnt_t{},
		state:  Runnable,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
		Entry:  entry,
	}
}

/// State returns the thread's current scheduling state.
func (t *Thread) State() State_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Thread) setState(s State_t) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// exitSignal unwinds Entry's goroutine stack via panic/recover when
// Exit is called, standing in for exit_thread's "-> !" (never returns)
// contract without a real CPU to stop dispatching instructions on.
type exitSignal struct{}

/// Exit terminates the calling thread immediately, per spec §4.7 syscall 0
/// (exit_thread): nothing after the call to Exit runs.
func Exit() {
	panic(exitSignal{})
}

/// Start launches the thread's goroutine. It blocks immediately until the
/// scheduler resumes it for the first time. A panic escaping Entry (other
/// than the Exit sentinel) is an internal invariant violation (spec §7):
/// it is dumped to the debug console via src/caller and the thread dies
/// without crashing the host test/driver process.
func (t *Thread) Start() {
	go func() {
		<-t.resume
		t.setState(Running)
		func() {
			defer func() {
				if r := recover(); r != nil {
					if _, ok := r.(exitSignal); !ok {
						if addr, ok := r.(uintptr); ok && t.Symbolicate != nil {
							fmt.Printf("thread %d: fault at %s\n", t.Tid, t.Symbolicate(addr))
							if t.Disassemble != nil {
								if insn, ok := t.Disassemble(addr); ok {
									fmt.Printf("thread %d: faulting instruction: %s\n", t.Tid, insn)
								}
							}
						} else {
							fmt.Printf("thread %d: panic: %v\n", t.Tid, r)
						}
						caller.Callerdump(2)
					}
				}
			}()
			t.Entry(t)
		}()
		t.mu.Lock()
		t.state = Dead
		t.Note.Alive = false
		t.mu.Unlock()
		t.yield <- struct{}{}
	}()
}

/// Block must be called from this Thread's own goroutine. It transitions
/// to Blocked, hands the CPU back to the scheduler, and does not return
/// until some other goroutine calls Wake and the scheduler resumes it.
func (t *Thread) Block() {
	t.setState(Blocked)
	t.yield <- struct{}{}
	<-t.resume
	t.setState(Running)
}

/// Yield must be called from this Thread's own goroutine. It gives up the
/// CPU voluntarily (spec §4.7 syscall 18, schedule) without blocking on
/// any wake source: t re-enqueues itself before handing the CPU back, so
/// it becomes runnable again as soon as the scheduler gets back around to
/// it.
func (t *Thread) Yield() {
	t.setState(Runnable)
	Sched.Enqueue(t)
	t.yield <- struct{}{}
	<-t.resume
	t.setState(Running)
}

/// Wake marks a Blocked thread Runnable and enqueues it on the scheduler's
/// run queue. Safe to call from any goroutine; does not itself hand over
/// the CPU (the scheduler does that in its own time, per spec §4.4's FIFO
/// policy).
func (t *Thread) Wake() {
	t.setState(Runnable)
	Sched.Enqueue(t)
}

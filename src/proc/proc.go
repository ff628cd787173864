// Package proc implements Process (spec §4.3): the owner of one address
// space, one handle table, and the threads running in it. There is no
// proc package in the retrieved teacher tree (its go.mod-only stub was
// never filled in by the retrieval), so this is rebuilt from spec.md
// directly, reusing the teacher's hashtable package as the kernel-wide
// PID registry, exactly as SPEC_FULL.md's component design calls for.
package proc

import (
	"context"
	"sync"

	"corekernel/src/accnt"
	"corekernel/src/defs"
	"corekernel/src/deferred"
	"corekernel/src/hashtable"
	"corekernel/src/initrd"
	"corekernel/src/kobj"
	"corekernel/src/thread"
	"corekernel/src/vm"
)

/// Entry is a spawned process's program, standing in for the real ELF
/// machine code spec §4.3 would otherwise resume into via sysret: this
/// kernel runs hosted on a stock Go runtime with no CPU to execute loaded
/// x86-64 instructions on, so the loaded ELF's segments are installed into
/// the new address space for realism (Spawn still does a real TAR lookup
/// and a real ELF-64 load), and the program's actual behavior is this
/// caller-supplied closure, which drives the process exactly as compiled
/// user code would: by issuing syscalls through src/syscall's dispatcher.
type Entry func(p *Process, t *thread.Thread)

/// Process owns one address space and one handle table, exclusively.
/// Created by Spawn, torn down (address space freed, Pid dropped from the
/// registry) when its last thread exits. Teardown does not close the
/// handles in its table and does not wait for outside references to drop.
type Process struct {
	Pid     defs.Pid_t
	Name    string
	Vm      *vm.Vm_t
	Handles *kobj.HandleTable
	Accnt   *accnt.Accnt_t

	/// Symbols is the spawned program's function symbol table, used to
	/// name a faulting address in a crash report (spec §6 EXPANSION). Nil
	/// for the kernel process, which is never Spawned from an ELF binary.
	Symbols *initrd.SymTable

	/// ExitCode resolves when the process's last thread calls exit_thread
	/// or the process otherwise terminates.
	ExitCode *deferred.Deferred[int32]

	mu      sync.Mutex
	threads map[defs.Tid_t]*thread.Thread
	parent  defs.Pid_t // 0 for the kernel process, which has no parent
}

var (
	pidNext int64 = 1
	pidMu   sync.Mutex

	/// registry maps every live Pid_t to its Process, the kernel-wide
	/// analogue of the teacher's hashtable-backed lookups elsewhere.
	registry = hashtable.MkHash(64)

	kernelProc *Process
	kernelOnce sync.Once
)

func allocPid() defs.Pid_t {
	pidMu.Lock()
	defer pidMu.Unlock()
	p := pidNext
	pidNext++
	return defs.Pid_t(p)
}

func newProcess(name string, parent defs.Pid_t) *Process {
	p := &Process{
		Pid:      allocPid(),
		Name:     name,
		Vm:       vm.Mkaddrspace(),
		Handles:  kobj.NewHandleTable(),
		Accnt:    &accnt.Accnt_t{},
		ExitCode: deferred.New[int32](),
		threads:  make(map[defs.Tid_t]*thread.Thread),
		parent:   parent,
	}
	registry.Set(int(p.Pid), p)
	return p
}

/// Kernel returns the ambient process that hosts driver goroutines (the
/// serial pump, the timer-tick generator) — this kernel's stand-in for
/// spec §4.3's IRQ-handler host process, since a hosted simulation has no
/// real interrupt controller to attach handlers to.
func Kernel() *Process {
	kernelOnce.Do(func() {
		kernelProc = newProcess("kernel", 0)
	})
	return kernelProc
}

/// Spawn implements spec §4.3's Process.spawn and syscall 8
/// (spawn_process): locates name in ird, creates an empty address space,
/// loads the ELF segments into it, builds a handle table from inherit
/// (positions preserved, refup'ing each handle out of parentHandles), and
/// creates a single thread running entry. Returns FileNotFound on a TAR
/// miss, InvalidArgument on a malformed ELF or bad inherited handle.
func Spawn(name string, inherit []defs.Handle_t, parentHandles *kobj.HandleTable, ird *initrd.Initrd, entry Entry) (*Process, defs.Err_t) {
	data, ok := ird.Lookup(name)
	if !ok {
		return nil, -defs.ENOENT
	}
	for _, hn := range inherit {
		if _, herr := parentHandles.Get(hn); herr != 0 {
			return nil, -defs.EINVAL
		}
	}

	p := newProcess(name, 0)
	elfEntry, syms, err := initrd.LoadELF(data, p.Vm)
	if err != 0 {
		registry.Del(int(p.Pid))
		return nil, err
	}
	_ = elfEntry // recorded for realism; this Entry closure drives execution instead
	p.Symbols = syms

	p.Handles.Inherit(parentHandles, inherit)

	t := thread.New(thread.NextTid(), p.Pid, func(t *thread.Thread) {
		entry(p, t)
		p.ThreadExited(t, 0)
	})
	t.Symbolicate = func(addr uintptr) string { return p.Symbols.Resolve(uint64(addr)) }
	t.Disassemble = func(addr uintptr) (string, bool) { return p.Symbols.Disassemble(uint64(addr)) }
	p.AddThread(t)
	t.Start()
	t.Wake()
	return p, 0
}

/// SpawnThread implements syscall 17 (spawn_thread): creates a new thread
/// in p running entry, without creating a new process or address space.
func (p *Process) SpawnThread(entry Entry) *thread.Thread {
	t := thread.New(thread.NextTid(), p.Pid, func(t *thread.Thread) {
		entry(p, t)
		p.ThreadExited(t, 0)
	})
	t.Symbolicate = func(addr uintptr) string { return p.Symbols.Resolve(uint64(addr)) }
	t.Disassemble = func(addr uintptr) (string, bool) { return p.Symbols.Disassemble(uint64(addr)) }
	p.AddThread(t)
	t.Start()
	t.Wake()
	return t
}

/// Lookup returns the live process named by pid, if any.
func Lookup(pid defs.Pid_t) (*Process, bool) {
	v, ok := registry.Get(int(pid))
	if !ok {
		return nil, false
	}
	return v.(*Process), true
}

/// AddThread registers t as running in p. Called once when t is created
/// (Spawn's first thread, or spawn_thread for a subsequent one).
func (p *Process) AddThread(t *thread.Thread) {
	p.mu.Lock()
	p.threads[t.Tid] = t
	p.mu.Unlock()
}

/// ThreadExited removes t from p's live-thread set and, if that was the
/// last thread, tears down the process: frees its address space back to
/// the physical bitmap, removes it from the registry, and resolves
/// ExitCode with code.
func (p *Process) ThreadExited(t *thread.Thread, code int32) {
	p.mu.Lock()
	if _, live := p.threads[t.Tid]; !live {
		// already reaped (e.g. exit_thread ran, then Entry returned)
		p.mu.Unlock()
		return
	}
	delete(p.threads, t.Tid)
	last := len(p.threads) == 0
	p.mu.Unlock()
	if last {
		p.Vm.Uvmfree()
		registry.Del(int(p.Pid))
		if !p.ExitCode.Resolved() {
			p.ExitCode.Resolve(code)
		}
	}
}

/// LiveThreads reports how many threads are still running in p.
func (p *Process) LiveThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

/// Ref is the kobj.KObj/kobj.ProcessHandle installed in a parent's
/// HandleTable by Spawn, letting the holder wait_for_exit on the child
/// (spec §4.7 syscall 9) without giving it direct access to Process's
/// other fields. A plain *Process can't implement kobj.ProcessHandle
/// itself: its Pid field and the interface's Pid() method would collide.
type Ref struct {
	proc *Process
}

func NewRef(p *Process) *Ref {
	return &Ref{proc: p}
}

func (r *Ref) Close() defs.Err_t {
	return 0
}

/// Wait blocks the calling thread until the referenced process's exit
/// code is available. Rather than blocking on ExitCode's raw channel
/// directly, it registers a Then callback that wakes the thread and then
/// calls Block, the same Deferred-plus-Block/Wake handoff every other
/// blocking kobj in src/ipc uses (spec §4.4: a blocking syscall marks the
/// calling thread Blocked and invokes schedule(), rather than parking the
/// goroutine somewhere the scheduler can't see it). If ctx carries no
/// thread (a programming error for any syscall-originated call, but true
/// of a few tests that wait from a bare goroutine), it falls back to a
/// direct channel wait.
func (r *Ref) Wait(ctx context.Context) int {
	t, ok := thread.FromContext(ctx)
	if !ok {
		return int(r.proc.ExitCode.Wait())
	}
	if !r.proc.ExitCode.Resolved() {
		r.proc.ExitCode.Then(func(int32) { t.Wake() })
		t.Block()
	}
	return int(r.proc.ExitCode.Wait())
}

func (r *Ref) Pid() defs.Pid_t {
	return r.proc.Pid
}

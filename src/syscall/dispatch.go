// Package syscall implements the table-driven syscall ABI (spec §4.7): a
// fixed 20-entry dispatch table, marshalling helpers against a Regs
// struct standing in for the argument registers (see marshal.go), and the
// negative-is-error result convention of spec §6. Grounded on the
// original Rust libsyscall/marshal.rs SyscallArgs/SyscallResult traits
// (typed extraction from a fixed argument list), rendered here as plain
// Go functions instead of a trait since Go has no generic trait dispatch
// over a tuple of argument types.
package syscall

import (
	"context"
	"sync"

	"corekernel/src/defs"
	"corekernel/src/fdops"
	"corekernel/src/initrd"
	"corekernel/src/ipc/mutex"
	"corekernel/src/ipc/pipe"
	"corekernel/src/ipc/sem"
	"corekernel/src/ipc/shm"
	"corekernel/src/kobj"
	"corekernel/src/mem"
	"corekernel/src/proc"
	"corekernel/src/thread"
)

var (
	mu  sync.Mutex
	ird *initrd.Initrd
)

/// SetInitrd installs the boot image's parsed TAR archive, consulted by
/// syscall 3 (open).
func SetInitrd(i *initrd.Initrd) {
	mu.Lock()
	ird = i
	mu.Unlock()
}

func getInitrd() *initrd.Initrd {
	mu.Lock()
	defer mu.Unlock()
	return ird
}

// fn is one dispatch table entry. ctx carries the calling thread (see
// package thread's WithThread/FromContext) for the blocking IPC calls.
type fn func(ctx context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr

/// Table is the syscall dispatch table, indexed by syscall number exactly
/// as spec §4.7 lists them.
var Table = [20]fn{
	0:  sysExitThread,
	1:  sysAllocPages,
	2:  sysFreePages,
	3:  sysOpen,
	4:  sysClose,
	5:  sysWrite,
	6:  sysRead,
	7:  sysNotSupported, // init_video_mode: driver-only, no VBE in this kernel
	8:  sysSpawnProcess,
	9:  sysWaitForExit,
	10: sysCreateSharedMem,
	11: sysMapSharedMem,
	12: sysCreatePipe,
	13: sysOpenHandle,
	14: sysCreateMutex,
	15: sysLockMutex,
	16: sysUnlockMutex,
	17: sysSpawnThread,
	18: sysSchedule,
	19: sysCurrentThreadId,
}

/// Dispatch runs the syscall named by r.Num on behalf of thread t running
/// in process p. t is also carried in ctx so a re-entrant Dispatch call
/// (there is none today, but a future async_read-style completion might
/// issue one) does not need to rebuild it.
func Dispatch(p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	if int(r.Num) < 0 || int(r.Num) >= len(Table) || Table[r.Num] == nil {
		return result(0, -defs.ENOSYS)
	}
	ctx := thread.WithThread(context.Background(), t)
	return Table[r.Num](ctx, p, t, r)
}

func sysNotSupported(_ context.Context, _ *proc.Process, _ *thread.Thread, _ *Regs) uintptr {
	return result(0, -defs.ENOSYS)
}

func sysExitThread(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	code := int32(argInt(r, 0))
	p.ThreadExited(t, code)
	thread.Exit()
	panic("unreachable")
}

func sysAllocPages(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	n := argInt(r, 0)
	if n <= 0 || n > 1<<40 {
		return result(0, -defs.ENOMEM)
	}
	p.Vm.Lock_pmap()
	length := (n + mem.PGSIZE - 1) &^ (mem.PGSIZE - 1)
	va := p.Vm.Unusedva_inner(userMin(), length)
	p.Vm.Unlock_pmap()
	p.Vm.Vmadd_anon(va, length, mem.PTE_U|mem.PTE_W)
	return result(uintptr(va), 0)
}

func sysFreePages(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	va := int(r.Args[0])
	p.Vm.Lock_pmap()
	defer p.Vm.Unlock_pmap()
	// va must be the start of a reserved region. Every page of it that has
	// been touched is unmapped and its frame released; the reservation
	// itself stays, so its addresses are not handed out again and a later
	// touch faults in a fresh zero page.
	vmi, ok := p.Vm.Vmregion.Lookup(uintptr(va))
	if !ok || int(vmi.Pgn<<mem.PGSHIFT) != va {
		return result(0, 0)
	}
	for i := 0; i < vmi.Pglen; i++ {
		p.Vm.Page_remove(va + i*mem.PGSIZE)
	}
	return result(1, 0)
}

func sysOpen(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	name, err := argStr(p.Vm, r.Args[0], 256)
	if err != 0 {
		return result(0, err)
	}
	data, ok := getInitrd().Lookup(string(name))
	if !ok {
		return result(0, -defs.ENOENT)
	}
	h := p.Handles.Insert(initrd.Open(data))
	return result(uintptr(h), 0)
}

func sysClose(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	h := argHandle(r, 0)
	return result(0, p.Handles.Close(h))
}

func sysWrite(ctx context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	h := argHandle(r, 0)
	n := argInt(r, 2)
	buf, err := argBytes(p.Vm, r.Args[1], n)
	if err != 0 {
		return result(0, err)
	}
	obj, err := p.Handles.Get(h)
	if err != 0 {
		return result(0, err)
	}
	w, ok := obj.(kobj.Writer)
	if !ok {
		return result(0, -defs.ENOSYS)
	}
	wrote, werr := w.Write(ctx, fdops.MkUseriobuf(buf))
	return result(uintptr(wrote), werr)
}

func sysRead(ctx context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	h := argHandle(r, 0)
	n := argInt(r, 2)
	obj, err := p.Handles.Get(h)
	if err != 0 {
		return result(0, err)
	}
	rdr, ok := obj.(kobj.Reader)
	if !ok {
		return result(0, -defs.ENOSYS)
	}
	dst, flush := argMutBytes(p.Vm, r.Args[1], n)
	got, rerr := rdr.Read(ctx, fdops.MkUseriobuf(dst))
	if rerr != 0 {
		return result(0, rerr)
	}
	if ferr := flush(dst[:got]); ferr != 0 {
		return result(0, ferr)
	}
	return result(uintptr(got), 0)
}

func sysSpawnProcess(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	// The inherit-handle-list and program-entry arguments are not
	// register-marshalled the way a fixed-width buffer would be: entry is
	// supplied out of band by the host test/bring-up (see src/proc.Entry's
	// doc comment on why this kernel has no machine code to jump to),
	// so this entry point is exercised directly as proc.Spawn by tests
	// and src/kernel rather than through Dispatch.
	return result(0, -defs.ENOSYS)
}

func sysWaitForExit(ctx context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	h := argHandle(r, 0)
	obj, err := p.Handles.Get(h)
	if err != 0 {
		return result(0, err)
	}
	ph, ok := obj.(kobj.ProcessHandle)
	if !ok {
		return result(0, -defs.ENOSYS)
	}
	return result(uintptr(ph.Wait(ctx)), 0)
}

func sysCreateSharedMem(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	blk := shm.NewEmpty()
	h := p.Handles.Insert(blk)
	return result(uintptr(h), 0)
}

func sysMapSharedMem(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	h := argHandle(r, 0)
	obj, err := p.Handles.Get(h)
	if err != 0 {
		return result(0, err)
	}
	blk, ok := obj.(*shm.Block)
	if !ok {
		return result(0, -defs.ENOSYS)
	}
	npages := argInt(r, 1)
	if growErr := blk.Grow(npages); growErr != 0 {
		return result(0, growErr)
	}
	perms := mem.PTE_U
	writable := argInt(r, 2) != 0
	if writable {
		perms |= mem.PTE_W
	}
	p.Vm.Lock_pmap()
	va := p.Vm.Unusedva_inner(userMin(), blk.Pages()*mem.PGSIZE)
	p.Vm.Unlock_pmap()
	if merr := blk.Map(p.Vm, va, perms); merr != 0 {
		return result(0, merr)
	}
	return result(uintptr(va), 0)
}

func sysCreatePipe(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	rd, wr := pipe.NewEnds(mem.Physmem)
	h := p.Handles.Insert(struct {
		*pipeEnds
	}{&pipeEnds{rd, wr}})
	return result(uintptr(h), 0)
}

// pipeEnds bundles a pipe's two ends behind the single handle syscall 12
// hands back (spec §4.7: "Returns a handle implementing both read and
// write").
type pipeEnds struct {
	r *pipe.ReadEnd
	w *pipe.WriteEnd
}

func (pe *pipeEnds) Close() defs.Err_t {
	e1 := pe.r.Close()
	e2 := pe.w.Close()
	if e1 != 0 {
		return e1
	}
	return e2
}
func (pe *pipeEnds) Read(ctx context.Context, dst fdops.Userio_i) (int, defs.Err_t) {
	return pe.r.Read(ctx, dst)
}
func (pe *pipeEnds) Write(ctx context.Context, src fdops.Userio_i) (int, defs.Err_t) {
	return pe.w.Write(ctx, src)
}

func sysOpenHandle(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	otherPid := defs.Pid_t(r.Args[0])
	slot := argHandle(r, 1)
	other, ok := proc.Lookup(otherPid)
	if !ok {
		return result(0, -defs.EBADF)
	}
	obj, err := other.Handles.Get(slot)
	if err != 0 {
		return result(0, err)
	}
	h := p.Handles.Insert(obj)
	return result(uintptr(h), 0)
}

func sysCreateMutex(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	h := p.Handles.Insert(mutex.New())
	return result(uintptr(h), 0)
}

func sysLockMutex(ctx context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	h := argHandle(r, 0)
	obj, err := p.Handles.Get(h)
	if err != 0 {
		return result(0, err)
	}
	l, ok := obj.(kobj.Locker)
	if !ok {
		return result(0, -defs.ENOSYS)
	}
	return result(0, l.Lock(ctx))
}

func sysUnlockMutex(ctx context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	h := argHandle(r, 0)
	obj, err := p.Handles.Get(h)
	if err != 0 {
		return result(0, err)
	}
	l, ok := obj.(kobj.Locker)
	if !ok {
		return result(0, -defs.ENOSYS)
	}
	return result(0, l.Unlock(ctx))
}

func sysSpawnThread(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	// As with sysSpawnProcess: the new thread's entry/ctx arguments name a
	// code address this kernel has no machine code behind. Exercised
	// directly as proc.Process.SpawnThread by callers that supply an
	// Entry closure, not through Dispatch.
	return result(0, -defs.ENOSYS)
}

func sysSchedule(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	t.Yield()
	return result(0, 0)
}

func sysCurrentThreadId(_ context.Context, p *proc.Process, t *thread.Thread, r *Regs) uintptr {
	return result(uintptr(t.Tid), 0)
}

// userMin avoids importing package vm here just for one constant used
// twice; both alloc_pages and map_shared_mem search for free virtual
// space starting just above the nil-pointer guard page.
func userMin() int {
	return mem.PGSIZE
}

/// CreateSemaphore and friends are reachable only from Go code, not from
/// the 20-entry table: spec §4.7 lists no syscall number for semaphores
/// beyond what the table already covers (mutex has 14-16; semaphores are
/// named in §4.8 but spec.md's own syscall table has no wait_semaphore
/// entry), so src/ipc/sem is exercised directly by its own package tests
/// rather than through Dispatch.
var _ = sem.New

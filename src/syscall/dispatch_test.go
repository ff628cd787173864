package syscall

import (
	"archive/tar"
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"corekernel/internal/testelf"
	"corekernel/src/defs"
	"corekernel/src/initrd"
	"corekernel/src/kobj"
	"corekernel/src/mem"
	"corekernel/src/proc"
	"corekernel/src/thread"
)

var setupOnce sync.Once

func setup(t *testing.T) (*proc.Process, *thread.Thread) {
	t.Helper()
	setupOnce.Do(func() {
		mem.Phys_init(4096)
		mem.Dmap_init()
		go thread.Sched.Boot()
	})

	var image bytes.Buffer
	writeTar(t, &image, "greeting", []byte("hi"))
	ird, err := initrd.Build(&image)
	if err != nil {
		t.Fatalf("building initrd: %v", err)
	}
	SetInitrd(ird)

	p := proc.Kernel()
	var th *thread.Thread
	ready := make(chan struct{})
	th = thread.New(thread.NextTid(), p.Pid, func(tt *thread.Thread) {
		<-ready
	})
	th.Start()
	th.Wake()
	close(ready) // let the body return immediately; the test drives calls from its own goroutine
	p.AddThread(th)
	return p, th
}

func writeTar(t *testing.T, buf *bytes.Buffer, name string, data []byte) {
	t.Helper()
	tw := tar.NewWriter(buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(data)), Mode: 0644}); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("tar body: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
}

func TestDispatchUnknownSyscallIsENOSYS(t *testing.T) {
	p, th := setup(t)
	got := Dispatch(p, th, &Regs{Num: 999})
	if want := result(0, -defs.ENOSYS); got != want {
		t.Fatalf("Dispatch(999) = %d, want %d (ENOSYS)", got, want)
	}
}

func TestOpenMissingFileIsENOENT(t *testing.T) {
	p, th := setup(t)
	ctx := thread.WithThread(context.Background(), th)

	nameva := writeUserString(t, p, "no-such-file")
	r := &Regs{Num: 3, Args: [6]uintptr{uintptr(nameva)}}
	got := Table[3](ctx, p, th, r)
	if want := result(0, -defs.ENOENT); got != want {
		t.Fatalf("open(no-such-file) = %d, want %d (ENOENT)", got, want)
	}
}

func TestAllocThenFreePages(t *testing.T) {
	p, th := setup(t)
	ctx := thread.WithThread(context.Background(), th)

	allocR := &Regs{Num: 1, Args: [6]uintptr{uintptr(mem.PGSIZE)}}
	va := Table[1](ctx, p, th, allocR)
	if int64(va) < 0 {
		t.Fatalf("alloc_pages failed: %d", va)
	}

	freeR := &Regs{Num: 2, Args: [6]uintptr{va}}
	got := Table[2](ctx, p, th, freeR)
	if got != 1 {
		t.Fatalf("free_pages(%d) = %d, want 1", va, got)
	}
}

func TestCreatePipeWriteThenRead(t *testing.T) {
	p, th := setup(t)
	ctx := thread.WithThread(context.Background(), th)

	h := Table[12](ctx, p, th, &Regs{Num: 12})

	msg := []byte("pipeline")
	wva := writeUserBytes(t, p, msg)
	wr := &Regs{Num: 5, Args: [6]uintptr{h, uintptr(wva), uintptr(len(msg))}}
	n := Table[5](ctx, p, th, wr)
	if int(n) != len(msg) {
		t.Fatalf("write = %d, want %d", n, len(msg))
	}

	rva := allocUserSpace(t, p, len(msg))
	rr := &Regs{Num: 6, Args: [6]uintptr{h, uintptr(rva), uintptr(len(msg))}}
	got := Table[6](ctx, p, th, rr)
	if int(got) != len(msg) {
		t.Fatalf("read = %d, want %d", got, len(msg))
	}
	readBack, rerr := p.Vm.Userdmap8r(int(rva))
	if rerr != 0 {
		t.Fatalf("reading back result: %v", rerr)
	}
	if string(readBack[:len(msg)]) != string(msg) {
		t.Fatalf("read back %q, want %q", readBack[:len(msg)], msg)
	}
}

func TestMapSharedMemGrowsBlockToRequestedLength(t *testing.T) {
	p, th := setup(t)
	ctx := thread.WithThread(context.Background(), th)

	h := Table[10](ctx, p, th, &Regs{Num: 10})
	if int64(h) < 0 {
		t.Fatalf("create_shared_mem failed: %d", h)
	}

	const frames = 2
	mapR := &Regs{Num: 11, Args: [6]uintptr{h, frames, 1}}
	va := Table[11](ctx, p, th, mapR)
	if int64(va) < 0 {
		t.Fatalf("map_shared_mem failed: %d", va)
	}

	// Writing a full frames*PGSIZE buffer only succeeds if the block was
	// actually grown to 2 frames and both got mapped; a 1-frame mapping
	// would EFAULT on the second page.
	buf := make([]byte, frames*mem.PGSIZE)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := p.Vm.K2user(buf, int(va)); err != 0 {
		t.Fatalf("writing across the mapped block: %v (block not grown to %d frames)", err, frames)
	}

	got := make([]byte, len(buf))
	if err := p.Vm.User2k(got, int(va)); err != 0 {
		t.Fatalf("reading back across the mapped block: %v", err)
	}
	if string(got) != string(buf) {
		t.Fatalf("read back mismatched contents")
	}
}

// TestWaitForExitDoesNotWedgeTheScheduler drives wait_for_exit (syscall 9)
// on a process that has not exited yet from a real Thread running under
// Sched.Boot, the same handoff every other syscall-originated call goes
// through. ph.Wait used to block on ExitCode's raw channel directly,
// which would never send on this thread's own yield channel and wedge
// Boot's single resume/yield handoff for every other thread, including
// the child this call is waiting on.
func TestWaitForExitDoesNotWedgeTheScheduler(t *testing.T) {
	p, _ := setup(t)

	var childImg bytes.Buffer
	writeTar(t, &childImg, "child", testelf.Build([]byte{0x90, 0xc3}))
	childIrd, err := initrd.Build(&childImg)
	if err != nil {
		t.Fatalf("building child initrd: %v", err)
	}

	childRan := make(chan struct{})
	child, serr := proc.Spawn("child", nil, kobj.NewHandleTable(), childIrd, func(cp *proc.Process, ct *thread.Thread) {
		close(childRan)
	})
	if serr != 0 {
		t.Fatalf("Spawn(child): %v", serr)
	}

	hchild := p.Handles.Insert(proc.NewRef(child))
	waitR := &Regs{Num: 9, Args: [6]uintptr{uintptr(hchild)}}

	results := make(chan uintptr, 1)
	waiter := thread.New(thread.NextTid(), p.Pid, func(wt *thread.Thread) {
		wctx := thread.WithThread(context.Background(), wt)
		results <- Table[9](wctx, p, wt, waitR)
	})
	waiter.Start()
	waiter.Wake()

	select {
	case <-childRan:
	case <-time.After(2 * time.Second):
		t.Fatal("child entry never ran")
	}

	select {
	case got := <-results:
		if got != 0 {
			t.Fatalf("wait_for_exit = %d, want 0", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait_for_exit never returned; scheduler is wedged")
	}
}

// allocUserSpace reserves n bytes of anonymous user memory and returns
// its base address, via the same path sysAllocPages takes.
func allocUserSpace(t *testing.T, p *proc.Process, n int) uintptr {
	t.Helper()
	length := (n + mem.PGSIZE - 1) &^ (mem.PGSIZE - 1)
	p.Vm.Lock_pmap()
	va := p.Vm.Unusedva_inner(userMin(), length)
	p.Vm.Unlock_pmap()
	p.Vm.Vmadd_anon(va, length, mem.PTE_U|mem.PTE_W)
	return uintptr(va)
}

func writeUserBytes(t *testing.T, p *proc.Process, data []byte) uintptr {
	t.Helper()
	va := allocUserSpace(t, p, len(data))
	if err := p.Vm.K2user(data, int(va)); err != 0 {
		t.Fatalf("writing user bytes: %v", err)
	}
	return va
}

func writeUserString(t *testing.T, p *proc.Process, s string) uintptr {
	t.Helper()
	return writeUserBytes(t, p, append([]byte(s), 0))
}

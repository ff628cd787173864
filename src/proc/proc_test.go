package proc

import (
	"archive/tar"
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"corekernel/internal/testelf"
	"corekernel/src/defs"
	"corekernel/src/initrd"
	"corekernel/src/kobj"
	"corekernel/src/mem"
	"corekernel/src/thread"
)

var once sync.Once

func initOnce() {
	once.Do(func() {
		mem.Phys_init(4096)
		mem.Dmap_init()
		go thread.Sched.Boot()
	})
}

func buildInitrd(t *testing.T, name string, code []byte) *initrd.Initrd {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	bin := testelf.Build(code)
	if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(bin)), Mode: 0755}); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if _, err := tw.Write(bin); err != nil {
		t.Fatalf("tar body: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	ird, err := initrd.Build(&buf)
	if err != nil {
		t.Fatalf("initrd.Build: %v", err)
	}
	return ird
}

func TestSpawnMissingNameIsENOENT(t *testing.T) {
	initOnce()
	ird := buildInitrd(t, "present", []byte{0x90, 0xc3})
	parent := kobj.NewHandleTable()
	_, err := Spawn("absent", nil, parent, ird, func(p *Process, t *thread.Thread) {})
	if err != -defs.ENOENT {
		t.Fatalf("Spawn(absent) err = %v, want ENOENT", err)
	}
}

func TestSpawnRunsEntryAndResolvesExitCode(t *testing.T) {
	initOnce()
	ird := buildInitrd(t, "worker", []byte{0x90, 0xc3})
	parent := kobj.NewHandleTable()

	ran := make(chan struct{})
	p, err := Spawn("worker", nil, parent, ird, func(p *Process, t *thread.Thread) {
		close(ran)
	})
	if err != 0 {
		t.Fatalf("Spawn: %v", err)
	}
	if p.Symbols == nil {
		t.Fatal("Symbols is nil after Spawn, want a populated SymTable")
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("entry never ran")
	}

	select {
	case <-p.ExitCode.Done():
		if code := p.ExitCode.Wait(); code != 0 {
			t.Fatalf("ExitCode = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ExitCode never resolved")
	}

	if _, ok := Lookup(p.Pid); ok {
		t.Fatal("Lookup still finds a process whose last thread already exited")
	}
}

func TestSpawnThreadAddsASecondThreadToTheSameProcess(t *testing.T) {
	initOnce()
	ird := buildInitrd(t, "multi", []byte{0x90, 0xc3})
	parent := kobj.NewHandleTable()

	var release int32
	started := make(chan struct{})
	p, err := Spawn("multi", nil, parent, ird, func(p *Process, t *thread.Thread) {
		close(started)
		// A raw channel receive here would never hand control back to
		// Sched.Boot (only Block/Yield/return do), wedging the scheduler
		// for good; busy-yield instead so the second thread below can run.
		for atomic.LoadInt32(&release) == 0 {
			t.Yield()
		}
	})
	if err != 0 {
		t.Fatalf("Spawn: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first thread never ran")
	}
	if got := p.LiveThreads(); got != 1 {
		t.Fatalf("LiveThreads after Spawn = %d, want 1", got)
	}

	second := make(chan struct{})
	p.SpawnThread(func(p *Process, t *thread.Thread) {
		close(second)
	})
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second thread never ran")
	}

	atomic.StoreInt32(&release, 1)
	for i := 0; i < 100 && p.LiveThreads() != 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if got := p.LiveThreads(); got != 0 {
		t.Fatalf("LiveThreads after both exit = %d, want 0", got)
	}
}

func TestRefWaitReturnsChildExitCode(t *testing.T) {
	initOnce()
	ird := buildInitrd(t, "child", []byte{0x90, 0xc3})
	parent := kobj.NewHandleTable()

	p, err := Spawn("child", nil, parent, ird, func(p *Process, t *thread.Thread) {})
	if err != 0 {
		t.Fatalf("Spawn: %v", err)
	}
	ref := NewRef(p)
	if pid := ref.Pid(); pid != p.Pid {
		t.Fatalf("ref.Pid() = %v, want %v", pid, p.Pid)
	}

	done := make(chan int)
	go func() { done <- ref.Wait(context.Background()) }()
	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("ref.Wait() = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ref.Wait() never returned")
	}
}

// TestRefWaitBlocksUnderSchedulerUntilChildExits exercises Ref.Wait from a
// real Thread running under Sched.Boot rather than a bare goroutine: Wait
// used to block on ExitCode's raw channel directly, which never hands the
// simulated CPU back to the scheduler (see Thread.Block's doc comment),
// wedging Boot's single resume/yield handoff for every other thread,
// including the very child this call waits on.
func TestRefWaitBlocksUnderSchedulerUntilChildExits(t *testing.T) {
	initOnce()
	ird := buildInitrd(t, "childblock", []byte{0x90, 0xc3})
	parent := kobj.NewHandleTable()

	var release int32
	p, err := Spawn("childblock", nil, parent, ird, func(p *Process, t *thread.Thread) {
		for atomic.LoadInt32(&release) == 0 {
			t.Yield()
		}
	})
	if err != 0 {
		t.Fatalf("Spawn: %v", err)
	}
	ref := NewRef(p)

	results := make(chan int, 1)
	waiter := thread.New(thread.NextTid(), 0, func(wt *thread.Thread) {
		wctx := thread.WithThread(context.Background(), wt)
		results <- ref.Wait(wctx)
	})
	waiter.Start()
	waiter.Wake()

	select {
	case <-results:
		t.Fatal("ref.Wait returned before the child exited")
	case <-time.After(100 * time.Millisecond):
	}

	atomic.StoreInt32(&release, 1)
	select {
	case code := <-results:
		if code != 0 {
			t.Fatalf("ref.Wait = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ref.Wait never returned; scheduler wedged")
	}
}

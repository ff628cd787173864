package pipe

import (
	"context"
	"sync"
	"testing"
	"time"

	"corekernel/src/defs"
	"corekernel/src/fdops"
	"corekernel/src/mem"
	"corekernel/src/thread"
)

var once sync.Once

func initMem() {
	once.Do(func() {
		mem.Phys_init(4096)
		mem.Dmap_init()
		go thread.Sched.Boot()
	})
}

func runThread(body func(ctx context.Context, t *thread.Thread)) *thread.Thread {
	var th *thread.Thread
	th = thread.New(thread.NextTid(), 0, func(t *thread.Thread) {
		body(thread.WithThread(context.Background(), t), t)
	})
	th.Start()
	th.Wake()
	return th
}

func TestWriteThenReadFIFO(t *testing.T) {
	initMem()
	r, w := NewEnds(mem.Physmem)

	n, err := w.Write(context.Background(), fdops.MkUseriobuf([]byte("abc")))
	if err != 0 || n != 3 {
		t.Fatalf("Write = (%d, %v), want (3, 0)", n, err)
	}

	buf := make([]byte, 3)
	n, err = r.Read(context.Background(), fdops.MkUseriobuf(buf))
	if err != 0 || n != 3 || string(buf) != "abc" {
		t.Fatalf("Read = (%d, %q, %v), want (3, \"abc\", 0)", n, buf, err)
	}
}

func TestReadBlocksUntilWriterWakesIt(t *testing.T) {
	initMem()
	r, w := NewEnds(mem.Physmem)

	readDone := make(chan string, 1)
	runThread(func(ctx context.Context, _ *thread.Thread) {
		buf := make([]byte, 5)
		n, err := r.Read(ctx, fdops.MkUseriobuf(buf))
		if err != 0 {
			t.Errorf("Read: %v", err)
		}
		readDone <- string(buf[:n])
	})

	select {
	case <-readDone:
		t.Fatal("Read returned before any writer wrote data")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := w.Write(context.Background(), fdops.MkUseriobuf([]byte("hello"))); err != 0 {
		t.Fatalf("Write: %v", err)
	}

	select {
	case got := <-readDone:
		if got != "hello" {
			t.Fatalf("Read returned %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read never woke up after Write")
	}
}

func TestWriteAfterReaderCloseIsEPIPE(t *testing.T) {
	initMem()
	r, w := NewEnds(mem.Physmem)
	if err := r.Close(); err != 0 {
		t.Fatalf("Close: %v", err)
	}
	_, err := w.Write(context.Background(), fdops.MkUseriobuf([]byte("x")))
	if err != -defs.EPIPE {
		t.Fatalf("Write after reader close = %v, want EPIPE", err)
	}
}

func TestReadAfterWriterCloseDrainsThenReturnsEOF(t *testing.T) {
	initMem()
	r, w := NewEnds(mem.Physmem)
	if _, err := w.Write(context.Background(), fdops.MkUseriobuf([]byte("ab"))); err != 0 {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != 0 {
		t.Fatalf("Close: %v", err)
	}

	buf := make([]byte, 2)
	n, err := r.Read(context.Background(), fdops.MkUseriobuf(buf))
	if err != 0 || n != 2 {
		t.Fatalf("first Read = (%d, %v), want (2, 0)", n, err)
	}

	n, err = r.Read(context.Background(), fdops.MkUseriobuf(buf))
	if err != 0 || n != 0 {
		t.Fatalf("Read after drain+writer-close = (%d, %v), want (0, 0)", n, err)
	}
}

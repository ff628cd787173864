package kernel

import (
	"archive/tar"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"corekernel/internal/testelf"
	"corekernel/src/fdops"
	"corekernel/src/kobj"
	"corekernel/src/proc"
	"corekernel/src/thread"
)

// buildInitrd packs files (name -> contents) into an in-memory TAR image,
// the same shape cmd/mkinitrd produces.
func buildInitrd(t *testing.T, files map[string][]byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, data := range files {
		hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0755}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing tar header for %s: %v", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("writing tar contents for %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	return &buf
}

// helloEntry stands in for a compiled "hello" program: it writes to its
// inherited stdout handle and returns, which Spawn's thread wrapper turns
// into an exit_thread(0).
func helloEntry(p *proc.Process, t *thread.Thread) {
	stdout, err := p.Handles.Get(1)
	if err != 0 {
		thread.Exit()
	}
	w, ok := stdout.(kobj.Writer)
	if !ok {
		thread.Exit()
	}
	ctx := thread.WithThread(context.Background(), t)
	w.Write(ctx, fdops.MkUseriobuf([]byte("hello\n")))
}

// TestEndToEnd boots one Kernel and runs every assertion against it.
// proc.Kernel() is a process-wide singleton (one ambient kernel process
// per host, by design — see src/proc's Kernel doc comment), so a second
// Boot call in the same test binary would re-insert the standard handles
// at new table slots and break the fixed-number inherit convention
// Kernel.Spawn relies on; one Boot call keeps that convention intact.
func TestEndToEnd(t *testing.T) {
	initrd := buildInitrd(t, map[string][]byte{
		"hello": testelf.Build([]byte{0x90, 0x90, 0xc3}), // nop nop ret; never executed
	})
	var console bytes.Buffer
	k, err := Boot(Config{Frames: 4096, InitrdImage: initrd, ConsoleSink: &console})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer k.Shutdown()

	t.Run("hello process exits zero and writes stdout", func(t *testing.T) {
		p, serr := k.Spawn("hello", helloEntry)
		if serr != 0 {
			t.Fatalf("Spawn(hello): %v", serr)
		}

		done := make(chan int32, 1)
		go func() { done <- p.ExitCode.Wait() }()

		select {
		case code := <-done:
			if code != 0 {
				t.Fatalf("exit code = %d, want 0", code)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("hello process never exited")
		}

		if !strings.Contains(console.String(), "hello") {
			t.Fatalf("console output = %q, want it to contain %q", console.String(), "hello")
		}
	})

	t.Run("spawning an unknown name fails", func(t *testing.T) {
		_, serr := k.Spawn("no-such", helloEntry)
		if serr == 0 {
			t.Fatal("Spawn(no-such) succeeded, want ENOENT")
		}
	})
}

package statsdev

import (
	"context"
	"strings"
	"testing"

	"github.com/google/pprof/profile"

	"corekernel/src/fdops"
	"corekernel/src/stats"
)

type testCounters struct {
	Syscalls stats.Counter_t
	Uptime   stats.Cycles_t
}

func TestStatDevRendersSnapshotOnce(t *testing.T) {
	c := &testCounters{}
	c.Syscalls.Inc()
	c.Syscalls.Inc()
	calls := 0
	d := NewStatDev(func() Snapshot {
		calls++
		return *c
	})

	buf := make([]byte, 4096)
	n, err := d.Read(context.Background(), fdops.MkUseriobuf(buf))
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "Syscalls: 2") {
		t.Fatalf("rendered stats = %q, want it to contain %q", buf[:n], "Syscalls: 2")
	}

	// A second Read (e.g. after the caller's buffer was too small to take
	// everything in one call) must not re-snapshot.
	more := make([]byte, 4096)
	if _, err := d.Read(context.Background(), fdops.MkUseriobuf(more)); err != 0 {
		t.Fatalf("second Read: %v", err)
	}
	if calls != 1 {
		t.Fatalf("snapshot func called %d times, want 1", calls)
	}
}

func TestProfDevRendersParseablePprofProfile(t *testing.T) {
	c := &testCounters{}
	c.Syscalls.Inc()
	d := NewProfDev(func() Snapshot { return *c })

	buf := make([]byte, 65536)
	n, err := d.Read(context.Background(), fdops.MkUseriobuf(buf))
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}

	p, perr := profile.ParseData(buf[:n])
	if perr != nil {
		t.Fatalf("parsing rendered profile: %v", perr)
	}
	if len(p.Sample) != 2 {
		t.Fatalf("len(Sample) = %d, want 2 (one per counter field)", len(p.Sample))
	}
	found := false
	for _, s := range p.Sample {
		if s.Location[0].Line[0].Function.Name == "Syscalls" {
			found = true
			if s.Value[0] != 1 {
				t.Fatalf("Syscalls sample value = %d, want 1", s.Value[0])
			}
		}
	}
	if !found {
		t.Fatal("no sample named Syscalls in rendered profile")
	}
}

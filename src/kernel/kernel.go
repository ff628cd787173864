// Package kernel wires every other package together into a bootable
// instance (spec §2/§5): it reserves physical memory, builds the ambient
// "kernel" process that owns the standard handles and driver goroutines,
// parses a boot image into an Initrd, starts the scheduler, and spawns
// the first user process. There is no single bring-up file in the
// retrieved teacher tree to adapt directly (its boot sequence starts in
// assembly and runs through a patched runtime's scheduler init before
// ever reaching Go code) — this package plays that role from scratch,
// grounded on the driver-goroutine supervision SPEC_FULL.md calls for.
package kernel

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"corekernel/src/debugcon"
	"corekernel/src/defs"
	"corekernel/src/initrd"
	"corekernel/src/mem"
	"corekernel/src/proc"
	"corekernel/src/stats"
	"corekernel/src/statsdev"
	"corekernel/src/syscall"
	"corekernel/src/thread"
)

/// Counters is the D_STAT/D_PROF snapshot struct. TimerTicks is bumped by
/// the timer driver and Uptime is added to on each snapshot; nothing
/// increments Syscalls, PageFaults or SerialIrqs, so they stay 0.
type Counters struct {
	Syscalls   stats.Counter_t
	PageFaults stats.Counter_t
	TimerTicks stats.Counter_t
	SerialIrqs stats.Counter_t
	Uptime     stats.Cycles_t
}

/// Kernel is one booted instance: the ambient process, the parsed boot
/// image, and the driver goroutines' supervising errgroup.
type Kernel struct {
	Proc    *proc.Process
	Initrd  *initrd.Initrd
	Counts  *Counters
	booted  time.Time
	drivers *errgroup.Group
	cancel  context.CancelFunc
}

/// Config configures a Boot call.
type Config struct {
	/// Frames is the number of page frames to reserve as physical RAM.
	Frames uint32
	/// InitrdImage is a TAR-formatted boot image (e.g. written by
	/// cmd/mkinitrd, or a test fixture built from x/tools/txtar text).
	InitrdImage io.Reader
	/// ConsoleSink receives debug console and stdout output; os.Stderr if
	/// nil.
	ConsoleSink io.Writer
}

// Boot reserves physical memory, installs the standard handles (console,
// /dev/null, stat, profile) in the ambient kernel process, parses
// cfg.InitrdImage, and starts the scheduler loop and driver goroutines.
// The returned Kernel is ready for Spawn.
func Boot(cfg Config) (*Kernel, error) {
	if cfg.Frames == 0 {
		cfg.Frames = 16384 // 64MB arena, plenty for test-sized initrds
	}
	mem.Phys_init(cfg.Frames)
	mem.Dmap_init()

	if cfg.ConsoleSink != nil {
		debugcon.SetSink(cfg.ConsoleSink)
	}

	ird, err := initrd.Build(cfg.InitrdImage)
	if err != nil {
		return nil, fmt.Errorf("kernel: parsing initrd: %w", err)
	}
	syscall.SetInitrd(ird)

	k := &Kernel{
		Proc:   proc.Kernel(),
		Initrd: ird,
		Counts: &Counters{},
		booted: bootTime(),
	}
	snapshot := func() statsdev.Snapshot {
		k.Counts.Uptime.Add(uint64(k.booted.UnixNano()))
		return *k.Counts
	}
	k.Proc.Handles.Insert(debugcon.Console{}) // 0: stdin
	k.Proc.Handles.Insert(debugcon.Console{}) // 1: stdout
	k.Proc.Handles.Insert(debugcon.Devnull{}) // 2
	k.Proc.Handles.Insert(statsdev.NewStatDev(snapshot))
	k.Proc.Handles.Insert(statsdev.NewProfDev(snapshot))

	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	k.drivers = g
	g.Go(func() error { return timerTick(gctx, k.Counts) })
	g.Go(func() error { return serialPump(gctx, k.Counts) })

	go thread.Sched.Boot()

	return k, nil
}

// bootTime stands in for spec's "monotonic clock read once at boot";
// Date.Now-equivalents are otherwise avoided in this codebase's
// deterministic paths (tests fix their own clock), but a single
// wall-clock read at Boot time is harmless since it only seeds uptime
// accounting, never control flow.
func bootTime() time.Time {
	return time.Now()
}

// timerTick simulates the timer IRQ source: one tick per period, counted
// in Counts.TimerTicks, until ctx is cancelled. Grounded on spec §5's
// "simulated IRQ sources" concept; there is no real programmable
// interval timer to program here.
func timerTick(ctx context.Context, c *Counters) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.TimerTicks.Inc()
		}
	}
}

// serialPump simulates the serial-port IRQ source; this hosted kernel has
// no real UART to poll, so it idles until cancellation, existing purely
// so the driver errgroup supervises more than one goroutine, matching the
// "IRQ sources" (plural) spec §5 names.
func serialPump(ctx context.Context, c *Counters) error {
	<-ctx.Done()
	return nil
}

/// Spawn locates name in the booted Initrd and starts it as a child of
/// the ambient kernel process, inheriting the five standard handles
/// (console x2, /dev/null, stat, prof) at their conventional numbers.
func (k *Kernel) Spawn(name string, entry proc.Entry) (*proc.Process, defs.Err_t) {
	std := []defs.Handle_t{0, 1, defs.D_DEVNULL, defs.D_STAT, defs.D_PROF} // 0,1: stdin/stdout console
	return proc.Spawn(name, std, k.Proc.Handles, k.Initrd, entry)
}

/// Shutdown cancels the driver goroutines and waits for them to exit.
func (k *Kernel) Shutdown() error {
	k.cancel()
	return k.drivers.Wait()
}

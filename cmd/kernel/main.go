// Command kernel boots a src/kernel instance against an on-disk initrd
// and waits for its driver goroutines until interrupted.
//
// This hosted kernel has no CPU to execute machine code loaded from an
// ELF binary (see src/proc's Entry doc comment): a real "run whatever
// initrd says" command would need a way to turn loaded x86-64
// instructions into Go control flow, which this project does not
// attempt. What this binary demonstrates instead is the bring-up path
// itself — memory reservation, initrd parsing, scheduler and driver
// goroutine start — against a supplied entry closure compiled into this
// program, standing in for whatever a real loader would hand off to.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"corekernel/src/kernel"
	"corekernel/src/proc"
	"corekernel/src/thread"
)

func main() {
	initrdPath := flag.String("initrd", "", "path to a TAR initrd built by cmd/mkinitrd")
	frames := flag.Uint("frames", 16384, "number of page frames to reserve as physical RAM")
	entryName := flag.String("run", "", "initrd file name to spawn after boot")
	flag.Parse()

	if *initrdPath == "" {
		fmt.Fprintln(os.Stderr, "kernel: -initrd is required")
		os.Exit(1)
	}
	f, err := os.Open(*initrdPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kernel:", err)
		os.Exit(1)
	}
	defer f.Close()

	k, err := kernel.Boot(kernel.Config{Frames: uint32(*frames), InitrdImage: f})
	if err != nil {
		fmt.Fprintln(os.Stderr, "kernel:", err)
		os.Exit(1)
	}

	if *entryName != "" {
		_, serr := k.Spawn(*entryName, func(p *proc.Process, t *thread.Thread) {
			thread.Exit()
		})
		if serr != 0 {
			fmt.Fprintf(os.Stderr, "kernel: spawning %q: %v\n", *entryName, serr)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := k.Shutdown(); err != nil {
		fmt.Fprintln(os.Stderr, "kernel: shutdown:", err)
	}
}

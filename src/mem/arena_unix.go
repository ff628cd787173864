//go:build linux || darwin

package mem

import "golang.org/x/sys/unix"

// mmapArena reserves the kernel's simulated RAM as an anonymous private
// mapping, grounded in gVisor's kvm platform physical map (which backs a
// guest's physical address space with a host mmap region rather than real
// DRAM). MAP_ANON|MAP_PRIVATE gives zero-filled pages with no backing file,
// matching "all RAM frames discovered at boot" closely enough for a hosted
// kernel.
func mmapArena(size int) []byte {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return make([]byte, size)
	}
	return b
}

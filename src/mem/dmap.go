package mem

// The teacher's dmap.go programs the x86-64 direct-map region into the real
// page tables (cpuid feature probes, 1GB/2MB page-size selection, PML4
// bookkeeping via a patched runtime). This kernel has no MMU to program —
// Dmap in mem.go already is a slice into the arena — so the only surviving
// piece of dmap.go's job is handing out a shared zero-filled frame for
// demand-zero mappings (spec §4.2 Vm_t page faults).

/// Zeropg is the physical address of a standing zero-filled frame, used to
/// seed newly faulted-in anonymous pages before they are written.
var Zeropg Pa_t

/// Dmap_init reserves the zero page. Must run once before any address
/// space is constructed.
func Dmap_init() {
	p, ok := Physmem.Refpg_new()
	if !ok {
		panic("oom reserving zero page")
	}
	Zeropg = p
	// held forever: never refdown'd, so it never returns to the bitmap.
}

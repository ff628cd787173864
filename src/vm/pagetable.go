package vm

import "sync"

import "corekernel/src/mem"

// Local aliases for the page table entry bits, since this package works in
// units of page-table entries constantly. The teacher's real x86-64 pmap
// additionally tracks PTE_COW/PTE_WASCOW (copy-on-write), PTE_PS (large
// pages), PTE_PCD (cache-disable), PTE_A/PTE_D (accessed/dirty, read back
// by the hardware page walker). None of those apply here: there is no
// fork to make COW necessary, no large-page support, no cache to manage,
// and no hardware walker to set A/D bits for us.
const (
	PGSHIFT  = mem.PGSHIFT
	PGOFFSET = mem.PGOFFSET
	PTE_P    = mem.PTE_P
	PTE_W    = mem.PTE_W
	PTE_U    = mem.PTE_U
	PTE_ADDR = mem.PTE_ADDR
)

/// Pagetable_t is this kernel's stand-in for a hardware page table: since
/// there is no MMU to program, "mapping a page" is simply recording an
/// entry in a Go map keyed by virtual page number. Each entry packs a
/// physical frame address and permission bits exactly like a real PTE, so
/// the rest of vm (Page_insert, Page_remove, the fault handler) reads
/// naturally as if it were walking real hardware page tables, just through
/// get/put instead of pointer dereference (a Go map gives no stable
/// address to mutate through).
type Pagetable_t struct {
	sync.Mutex
	ptes map[uintptr]mem.Pa_t
}

func newPagetable() *Pagetable_t {
	return &Pagetable_t{ptes: make(map[uintptr]mem.Pa_t)}
}

/// getpte returns the raw PTE value (frame | perm bits) mapping va's page,
/// or (0, false) if unmapped.
func (pm *Pagetable_t) getpte(va uintptr) (mem.Pa_t, bool) {
	vpn := va &^ uintptr(PGOFFSET)
	v, ok := pm.ptes[vpn]
	return v, ok
}

/// putpte installs v as the PTE mapping va's page. Passing v == 0 removes
/// the mapping.
func (pm *Pagetable_t) putpte(va uintptr, v mem.Pa_t) {
	vpn := va &^ uintptr(PGOFFSET)
	if v == 0 {
		delete(pm.ptes, vpn)
		return
	}
	pm.ptes[vpn] = v
}

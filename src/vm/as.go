// Package vm implements a process's virtual address space (spec §4.2):
// page-aligned reservations tracked in a Vmregion_t, a demand-zero
// anonymous page fault path, and the user<->kernel copy helpers every
// syscall argument marshaller (src/syscall) builds on. Adapted from the
// teacher's vm/as.go; see pagetable.go and vmregion.go for what changed
// and why.
package vm

import (
	"sync"
	"time"

	"corekernel/src/defs"
	"corekernel/src/mem"
	"corekernel/src/ustr"
	"corekernel/src/util"
)

/// USERMIN is the lowest virtual address a user mapping may occupy; the
/// low page is left unmapped as a nil-pointer guard.
const USERMIN int = mem.PGSIZE

/// Vm_t represents one process's address space. The embedded mutex
/// protects Vmregion and Pmap together, exactly as in the teacher: a page
/// fault and a concurrent Vmadd_* must never interleave.
type Vm_t struct {
	sync.Mutex

	Vmregion Vmregion_t
	Pmap     *Pagetable_t

	pgfltaken bool
}

/// Mkaddrspace allocates an empty address space.
func Mkaddrspace() *Vm_t {
	return &Vm_t{Pmap: newPagetable()}
}

/// Lock_pmap acquires the address space mutex and marks that page-table
/// manipulation is in progress.
func (as *Vm_t) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

/// Unlock_pmap releases the address space mutex.
func (as *Vm_t) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

/// Lockassert_pmap panics if the address space mutex is not held.
func (as *Vm_t) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("pgfl lock must be held")
	}
}

/// Userdmap8_inner returns a slice mapping the user address va, faulting
/// in a page if necessary. When k2u is true the mapping is prepared for a
/// kernel write (the syscall layer copying a result back to userspace).
func (as *Vm_t) Userdmap8_inner(va int, k2u bool) ([]uint8, defs.Err_t) {
	as.Lockassert_pmap()

	voff := va & int(PGOFFSET)
	uva := uintptr(va)
	vmi, ok := as.Vmregion.Lookup(uva)
	if !ok {
		return nil, -defs.EFAULT
	}
	if k2u && vmi.Perms&uint(PTE_W) == 0 {
		return nil, -defs.EFAULT
	}

	pte, present := as.Pmap.getpte(uva)
	if !present {
		var err defs.Err_t
		pte, err = as.pgfault(vmi, uva)
		if err != 0 {
			return nil, err
		}
	}

	pg := mem.Physmem.Dmap(pte & PTE_ADDR)
	return pg[voff:], 0
}

func (as *Vm_t) _userdmap8(va int, k2u bool) ([]uint8, defs.Err_t) {
	as.Lock_pmap()
	ret, err := as.Userdmap8_inner(va, k2u)
	as.Unlock_pmap()
	return ret, err
}

/// Userdmap8r maps the user address for reading and returns the resulting
/// slice or an error.
func (as *Vm_t) Userdmap8r(va int) ([]uint8, defs.Err_t) {
	return as._userdmap8(va, false)
}

func (as *Vm_t) usermapped(va, n int) bool {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	_, ok := as.Vmregion.Lookup(uintptr(va))
	return ok
}

/// Userreadn reads n (<= 8) bytes from the user address va as a
/// little-endian integer.
func (as *Vm_t) Userreadn(va, n int) (int, defs.Err_t) {
	as.Lock_pmap()
	a, b := as.userreadn_inner(va, n)
	as.Unlock_pmap()
	return a, b
}

func (as *Vm_t) userreadn_inner(va, n int) (int, defs.Err_t) {
	as.Lockassert_pmap()
	if n > 8 {
		panic("large n")
	}
	var ret int
	var src []uint8
	var err defs.Err_t
	for i := 0; i < n; i += len(src) {
		src, err = as.Userdmap8_inner(va+i, false)
		if err != 0 {
			return 0, err
		}
		l := n - i
		if len(src) < l {
			l = len(src)
		}
		v := util.Readn(src, l, 0)
		ret |= v << (8 * uint(i))
	}
	return ret, 0
}

/// Userwriten writes the low n bytes of val to the user address va.
func (as *Vm_t) Userwriten(va, n, val int) defs.Err_t {
	if n > 8 {
		panic("large n")
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	var dst []uint8
	for i := 0; i < n; i += len(dst) {
		v := val >> (8 * uint(i))
		t, err := as.Userdmap8_inner(va+i, true)
		dst = t
		if err != 0 {
			return err
		}
		util.Writen(dst, n-i, 0, v)
	}
	return 0
}

/// Userstr copies a NUL-terminated string from user space, up to lenmax
/// bytes.
func (as *Vm_t) Userstr(uva int, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	as.Lock_pmap()
	i := 0
	s := ustr.MkUstr()
	for {
		str, err := as.Userdmap8_inner(uva+i, false)
		if err != 0 {
			as.Unlock_pmap()
			return s, err
		}
		for j, c := range str {
			if c == 0 {
				s = append(s, str[:j]...)
				as.Unlock_pmap()
				return s, 0
			}
		}
		s = append(s, str...)
		i += len(str)
		if len(s) >= lenmax {
			as.Unlock_pmap()
			return nil, -defs.ENAMETOOLONG
		}
	}
}

/// Usertimespec reads a (seconds, nanoseconds) pair from user memory at va.
func (as *Vm_t) Usertimespec(va int) (time.Duration, time.Time, defs.Err_t) {
	var zt time.Time
	secs, err := as.Userreadn(va, 8)
	if err != 0 {
		return 0, zt, err
	}
	nsecs, err := as.Userreadn(va+8, 8)
	if err != 0 {
		return 0, zt, err
	}
	if secs < 0 || nsecs < 0 {
		return 0, zt, -defs.EINVAL
	}
	tot := time.Duration(secs)*time.Second + time.Duration(nsecs)*time.Nanosecond
	t := time.Unix(int64(secs), int64(nsecs))
	return tot, t, 0
}

/// K2user copies src into the user address space starting at uva.
func (as *Vm_t) K2user(src []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.K2user_inner(src, uva)
	as.Unlock_pmap()
	return ret
}

func (as *Vm_t) K2user_inner(src []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	l := len(src)
	for cnt != l {
		dst, err := as.Userdmap8_inner(uva+cnt, true)
		if err != 0 {
			return err
		}
		ub := len(src)
		if ub > len(dst) {
			ub = len(dst)
		}
		copy(dst, src[:ub])
		src = src[ub:]
		cnt += ub
	}
	return 0
}

/// User2k copies len(dst) bytes from the user address uva into dst.
func (as *Vm_t) User2k(dst []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.User2k_inner(dst, uva)
	as.Unlock_pmap()
	return ret
}

func (as *Vm_t) User2k_inner(dst []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	for len(dst) != 0 {
		src, err := as.Userdmap8_inner(uva+cnt, false)
		if err != 0 {
			return err
		}
		did := copy(dst, src)
		dst = dst[did:]
		cnt += did
	}
	return 0
}

/// Unusedva_inner finds an unreserved virtual address range of the given
/// length at or after startva, for alloc_pages/map_shared_mem placement
/// when the caller doesn't name an address.
func (as *Vm_t) Unusedva_inner(startva, length int) int {
	as.Lockassert_pmap()
	if length < 0 || length > 1<<48 {
		panic("weird len")
	}
	startva = util.Rounddown(startva, mem.PGSIZE)
	if startva < USERMIN {
		startva = USERMIN
	}
	ret, _ := as.Vmregion.empty(uintptr(startva), uintptr(length))
	return int(ret)
}

// pgfault resolves a fault at uva within region vmi: this kernel only
// demand-zero-fills anonymous pages (VSHARED regions are mapped eagerly
// by map_shared_mem and never fault). Caller holds as's pmap lock.
func (as *Vm_t) pgfault(vmi *Vminfo_t, uva uintptr) (mem.Pa_t, defs.Err_t) {
	if vmi.Perms == 0 {
		return 0, -defs.EFAULT
	}
	if vmi.Mtype != VANON {
		panic("shared mapping should already be mapped")
	}
	p_pg, ok := mem.Physmem.Refpg_new()
	if !ok {
		return 0, -defs.ENOMEM
	}
	perms := PTE_U | PTE_P
	if vmi.Perms&uint(PTE_W) != 0 {
		perms |= PTE_W
	}
	as.Page_insert(int(uva), p_pg, perms, true)
	return p_pg | perms, 0
}

/// Page_insert maps the physical frame p_pg at va with perms, taking a
/// reference on p_pg. vempty asserts no mapping currently exists there; it
/// returns whether an existing mapping was replaced.
func (as *Vm_t) Page_insert(va int, p_pg mem.Pa_t, perms mem.Pa_t, vempty bool) bool {
	as.Lockassert_pmap()
	mem.Physmem.Refup(p_pg)
	old, present := as.Pmap.getpte(uintptr(va))
	if present {
		if vempty {
			panic("pte not empty")
		}
		mem.Physmem.Refdown(old & PTE_ADDR)
	}
	as.Pmap.putpte(uintptr(va), p_pg|perms|PTE_P)
	return present
}

/// Page_remove unmaps the page at va, returning true if a mapping was
/// removed.
func (as *Vm_t) Page_remove(va int) bool {
	as.Lockassert_pmap()
	old, present := as.Pmap.getpte(uintptr(va))
	if !present {
		return false
	}
	mem.Physmem.Refdown(old & PTE_ADDR)
	as.Pmap.putpte(uintptr(va), 0)
	return true
}

/// Pgfault handles a page fault for tid at fault address fa. This kernel
/// runs cooperative threads as goroutines, so there is no hardware trap;
/// callers (the syscall dispatcher, when a marshal helper sees EFAULT)
/// invoke this explicitly to attempt to resolve it once before giving up.
func (as *Vm_t) Pgfault(tid defs.Tid_t, fa uintptr) defs.Err_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	vmi, ok := as.Vmregion.Lookup(fa)
	if !ok {
		return -defs.EFAULT
	}
	if _, present := as.Pmap.getpte(fa); present {
		return 0
	}
	_, err := as.pgfault(vmi, fa)
	return err
}

/// Uvmfree releases every user mapping in this address space.
func (as *Vm_t) Uvmfree() {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	for vpn, pte := range as.Pmap.ptes {
		mem.Physmem.Refdown(pte & PTE_ADDR)
		delete(as.Pmap.ptes, vpn)
	}
	as.Vmregion.Clear()
}

/// Vmadd_anon reserves start..start+len as a private anonymous mapping
/// with the given permissions (PTE_U[|PTE_W]). Pages are not installed
/// until first touch.
func (as *Vm_t) Vmadd_anon(start, len int, perms mem.Pa_t) {
	vmi := as._mkvmi(VANON, start, len, perms)
	as.Vmregion.insert(vmi)
}

/// Vmadd_shared reserves start..start+len and eagerly installs frames,
/// for a SharedMemBlock mapping (spec §4.8): unlike VANON, every page is
/// mapped up front since the frames already exist and are shared with
/// another address space.
func (as *Vm_t) Vmadd_shared(start, len int, perms mem.Pa_t, frames []mem.Pa_t) {
	vmi := as._mkvmi(VSHARED, start, len, perms)
	as.Vmregion.insert(vmi)
	as.Lock_pmap()
	defer as.Unlock_pmap()
	ptePerms := PTE_U | PTE_P
	if perms&PTE_W != 0 {
		ptePerms |= PTE_W
	}
	for i, f := range frames {
		as.Page_insert(start+i*mem.PGSIZE, f, ptePerms, true)
	}
}

func (as *Vm_t) _mkvmi(mt mtype_t, start, len int, perms mem.Pa_t) *Vminfo_t {
	if len <= 0 {
		panic("bad vmi len")
	}
	if mem.Pa_t(start|len)&PGOFFSET != 0 {
		panic("start and len must be page aligned")
	}
	pm := PTE_W | PTE_P | PTE_U
	if r := perms & pm; r != 0 && r != PTE_U && r != (PTE_W|PTE_U) {
		panic("bad perms")
	}
	return &Vminfo_t{
		Mtype: mt,
		Pgn:   uintptr(start) >> PGSHIFT,
		Pglen: util.Roundup(len, mem.PGSIZE) >> PGSHIFT,
		Perms: uint(perms),
	}
}

/// Mkuserbuf allocates a Userbuf_t referencing the user memory range
/// [userva, userva+len) of this address space.
func (as *Vm_t) Mkuserbuf(userva, len int) *Userbuf_t {
	ret := &Userbuf_t{}
	ret.ub_init(as, userva, len)
	return ret
}

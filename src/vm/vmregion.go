package vm

import "sort"

/// mtype_t distinguishes the kinds of mapping a Vminfo_t can describe.
type mtype_t uint

const (
	/// VANON is a private anonymous mapping, demand-zero filled on first
	/// touch (spec §4.2).
	VANON mtype_t = iota
	/// VSHARED is a mapping onto frames owned by a SharedMemBlock
	/// (spec §4.8); its frames are installed eagerly at map time, so it
	/// never takes a page fault.
	VSHARED
)

/// Vminfo_t describes one reserved virtual memory region: page-aligned,
/// contiguous, and homogeneous in mapping type and permissions. Adapted
/// from the teacher's Vminfo_t, dropping the file-backed/COW fields (Mfile,
/// shared-unpin-callback) this kernel has no use for: there is no mmap'd
/// file and no fork, so every region is either private-anonymous or
/// eagerly-backed shared memory.
type Vminfo_t struct {
	Mtype mtype_t
	Pgn   uintptr // first page number covered
	Pglen int     // number of pages covered
	Perms uint    // PTE_U[|PTE_W], checked against the fault's access type
}

func (v *Vminfo_t) start() uintptr { return v.Pgn << PGSHIFT }
func (v *Vminfo_t) end() uintptr   { return (v.Pgn + uintptr(v.Pglen)) << PGSHIFT }

/// Vmregion_t tracks the non-overlapping reservations of one address
/// space, sorted by starting page number. The teacher's Vmregion_t is a
/// balanced interval tree sized for thousands of mmap'd file regions; this
/// kernel's regions come only from alloc_pages/map_shared_mem calls, so a
/// sorted slice with binary-search lookup carries the same invariant
/// (reservations never overlap) with far less code.
type Vmregion_t struct {
	regions []*Vminfo_t
}

/// Lookup returns the region containing virtual address va, if any.
func (vr *Vmregion_t) Lookup(va uintptr) (*Vminfo_t, bool) {
	i := sort.Search(len(vr.regions), func(i int) bool {
		return vr.regions[i].end() > va
	})
	if i < len(vr.regions) && vr.regions[i].start() <= va {
		return vr.regions[i], true
	}
	return nil, false
}

/// insert adds a new, non-overlapping region to the set.
func (vr *Vmregion_t) insert(vmi *Vminfo_t) {
	i := sort.Search(len(vr.regions), func(i int) bool {
		return vr.regions[i].start() >= vmi.start()
	})
	if i < len(vr.regions) && vr.regions[i].start() < vmi.end() {
		panic("overlapping vm region")
	}
	if i > 0 && vr.regions[i-1].end() > vmi.start() {
		panic("overlapping vm region")
	}
	vr.regions = append(vr.regions, nil)
	copy(vr.regions[i+1:], vr.regions[i:])
	vr.regions[i] = vmi
}

/// empty finds a gap of at least length len starting no earlier than
/// startva, for Unusedva_inner's mmap-style address search.
func (vr *Vmregion_t) empty(startva, length uintptr) (uintptr, uintptr) {
	cur := startva
	for _, r := range vr.regions {
		if r.start() >= cur+length {
			break
		}
		if r.end() > cur {
			cur = r.end()
		}
	}
	return cur, length
}

/// Clear drops all reservations, used when an address space is torn down.
func (vr *Vmregion_t) Clear() {
	vr.regions = nil
}

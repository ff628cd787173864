// Package mem implements the physical frame allocator (spec §4.1):
// a bitmap over every frame in the kernel's RAM arena, adapted from the
// teacher's Physmem_t. The teacher's free-list-over-array design exists to
// serve a multi-CPU kernel (per-CPU free lists, cr3-load refcounting on
// page-table pages); this kernel is explicitly uniprocessor (spec §1
// Non-goals: no SMP), so the per-CPU lists collapse to a single bitmap
// guarded by one mutex, and there is no cr3/pmap refcounting to track.
package mem

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"corekernel/src/oommsg"
)

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

// Page table entry bits, carried from the teacher. PTE_COW is unused (this
// kernel has no fork/copy-on-write) and is kept only so the bit layout
// matches the teacher's for anyone cross-referencing the two.
const (
	PTE_P    Pa_t = 1 << 0
	PTE_W    Pa_t = 1 << 1
	PTE_U    Pa_t = 1 << 2
	PTE_COW  Pa_t = 1 << 9
	PTE_ADDR Pa_t = PGMASK
)

/// Pa_t represents an offset into the physical RAM arena, i.e. a physical
/// address. A Pa_t naming a whole Frame is always page-aligned.
type Pa_t uintptr

/// Pg_t is a page-sized byte buffer, the unit the allocator hands out.
type Pg_t [PGSIZE]byte

func pg2pgn(p Pa_t) uint32 {
	return uint32(p >> PGSHIFT)
}

/// Page_i abstracts the physical frame allocator, letting callers like
/// circbuf.Circbuf_t take an allocator without depending on the concrete
/// Physmem_t type.
type Page_i interface {
	Refpg_new_nozero() (Pa_t, bool)
	Refup(Pa_t)
	Refdown(Pa_t) bool
	Dmap(Pa_t) []byte
}

/// Physpg_t describes the accounting for a single physical frame.
type Physpg_t struct {
	Refcnt int32
}

/// Physmem_t manages all physical memory for the kernel: a bitmap of
/// free/used frames plus a parallel refcount array, since a frame may be
/// mapped by more than one mapping at once (e.g. a SharedMemBlock's frames,
/// spec §3) and must not be returned to the bitmap until every reference is
/// dropped.
type Physmem_t struct {
	sync.Mutex
	arena   []byte
	bitmap  []uint64 // one bit per frame; 1 == free
	pgs     []Physpg_t
	nframes uint32
	oomed   bool
}

/// Physmem is the global physical memory allocator instance.
var Physmem = &Physmem_t{}

/// Phys_init reserves an arena of nframes page frames and returns the
/// initialized allocator. The arena comes from mmapArena (x/sys/unix.Mmap
/// on Unix hosts, a plain heap slice elsewhere), standing in for "every RAM
/// frame discovered at boot".
func Phys_init(nframes uint32) *Physmem_t {
	phys := Physmem
	phys.arena = mmapArena(int(nframes) * PGSIZE)
	phys.nframes = nframes
	phys.pgs = make([]Physpg_t, nframes)
	words := (nframes + 63) / 64
	phys.bitmap = make([]uint64, words)
	for i := range phys.bitmap {
		phys.bitmap[i] = ^uint64(0)
	}
	if rem := nframes % 64; rem != 0 {
		phys.bitmap[words-1] = (uint64(1) << rem) - 1
	}
	fmt.Printf("mem: reserved %d frames (%d MB)\n", nframes, (int(nframes)*PGSIZE)>>20)
	return phys
}

// _allocidx does a first-fit scan of the bitmap. Caller holds phys.Mutex.
func (phys *Physmem_t) _allocidx() (uint32, bool) {
	for w, word := range phys.bitmap {
		if word == 0 {
			continue
		}
		b := bits.TrailingZeros64(word)
		idx := uint32(w)*64 + uint32(b)
		if idx >= phys.nframes {
			continue
		}
		phys.bitmap[w] &^= 1 << uint(b)
		return idx, true
	}
	return 0, false
}

/// Refpg_new allocates a zeroed frame. The returned frame's refcount is 1.
func (phys *Physmem_t) Refpg_new() (Pa_t, bool) {
	p, ok := phys.Refpg_new_nozero()
	if !ok {
		return 0, false
	}
	pg := phys.Dmap(p)
	for i := range pg {
		pg[i] = 0
	}
	return p, true
}

/// Refpg_new_nozero allocates an uninitialized frame with refcount 1. On
/// exhaustion it publishes on oommsg.OomCh before reporting failure
/// (spec §7: allocation exhaustion is a reportable error, not a panic).
func (phys *Physmem_t) Refpg_new_nozero() (Pa_t, bool) {
	phys.Lock()
	idx, ok := phys._allocidx()
	if !ok {
		wasOomed := phys.oomed
		phys.oomed = true
		phys.Unlock()
		if !wasOomed {
			oommsg.Notify(PGSIZE)
		}
		return 0, false
	}
	phys.oomed = false
	phys.pgs[idx].Refcnt = 1
	phys.Unlock()
	return Pa_t(idx) << PGSHIFT, true
}

/// Refcnt returns the current reference count of a frame.
func (phys *Physmem_t) Refcnt(p Pa_t) int {
	idx := pg2pgn(p)
	return int(atomic.LoadInt32(&phys.pgs[idx].Refcnt))
}

/// Refup increments the reference count of a frame.
func (phys *Physmem_t) Refup(p Pa_t) {
	idx := pg2pgn(p)
	c := atomic.AddInt32(&phys.pgs[idx].Refcnt, 1)
	if c <= 0 {
		panic("refup: frame was free")
	}
}

/// Refdown decrements a frame's reference count, returning it to the free
/// bitmap and reporting true once the count reaches zero.
func (phys *Physmem_t) Refdown(p Pa_t) bool {
	idx := pg2pgn(p)
	c := atomic.AddInt32(&phys.pgs[idx].Refcnt, -1)
	if c < 0 {
		panic("refdown: frame already free")
	}
	if c != 0 {
		return false
	}
	phys.Lock()
	phys.bitmap[idx/64] |= 1 << uint(idx%64)
	phys.Unlock()
	return true
}

/// Dmap returns a byte slice over the frame at physical address p. The
/// teacher's Dmap walks a recursive direct-map page table; since a Pa_t
/// here already is an offset into the arena, Dmap is just a slice.
func (phys *Physmem_t) Dmap(p Pa_t) []byte {
	return phys.arena[p : int(p)+PGSIZE]
}

/// Dmap8 returns a byte slice mapped to the given physical address, offset
/// within its page.
func (phys *Physmem_t) Dmap8(p Pa_t) []byte {
	base := p &^ PGOFFSET
	off := p & PGOFFSET
	return phys.Dmap(base)[off:]
}

/// Free reports the number of free frames remaining.
func (phys *Physmem_t) Free() int {
	phys.Lock()
	defer phys.Unlock()
	n := 0
	for w, word := range phys.bitmap {
		for b := 0; b < 64; b++ {
			idx := uint32(w)*64 + uint32(b)
			if idx >= phys.nframes {
				break
			}
			if word&(1<<uint(b)) != 0 {
				n++
			}
		}
	}
	return n
}

/// Total reports the number of frames in the arena.
func (phys *Physmem_t) Total() int {
	return int(phys.nframes)
}

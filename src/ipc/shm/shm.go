// Package shm implements SharedMemBlock (spec §4.8): a resizable run of
// physical frames that any number of processes can map into their own
// address space at their own chosen virtual address, with writes visible
// across every mapping. There is no filesystem-backed shared memory object
// in the retrieved teacher tree (its mmap path is file-backed only, dropped
// per DESIGN.md), so this is new code grounded on mem.Physmem's existing
// refcounted-frame API and vm.Vm_t.Vmadd_shared's eager-install path.
package shm

import (
	"corekernel/src/defs"
	"corekernel/src/mem"
	"corekernel/src/vm"
)

/// Block is a shared memory object: a run of physical frames (resized by
/// Grow), kept
/// alive by the refcount each mapping holds via mem.Physmem.
type Block struct {
	frames []mem.Pa_t
}

/// New allocates an npages-frame shared memory block, zero-filled.
func New(npages int) (*Block, defs.Err_t) {
	if npages <= 0 {
		return nil, -defs.EINVAL
	}
	frames := make([]mem.Pa_t, 0, npages)
	for i := 0; i < npages; i++ {
		p, ok := mem.Physmem.Refpg_new()
		if !ok {
			for _, f := range frames {
				mem.Physmem.Refdown(f)
			}
			return nil, -defs.ENOMEM
		}
		frames = append(frames, p)
	}
	return &Block{frames: frames}, 0
}

/// NewEmpty returns a zero-frame Block (spec §4.7 syscall 10:
/// create_shared_mem starts a block with nothing backing it yet; frames
/// are only allocated once map_shared_mem names a length via Grow).
func NewEmpty() *Block {
	return &Block{}
}

/// Pages returns the number of frames backing this block.
func (b *Block) Pages() int {
	return len(b.frames)
}

/// Grow resizes the block to exactly n frames, allocating new ones at the
/// end if n is larger than the current size or releasing the excess if
/// n is smaller (spec §3: "Resizing appends or truncates frames"). It is
/// a no-op if the block is already exactly n frames. Existing mappings
/// keep seeing their original frames until the next Map call, matching
/// spec §3's "mappings ... updated lazily on the next map call".
func (b *Block) Grow(n int) defs.Err_t {
	if n < 0 {
		return -defs.EINVAL
	}
	if n > len(b.frames) {
		for len(b.frames) < n {
			p, ok := mem.Physmem.Refpg_new()
			if !ok {
				return -defs.ENOMEM
			}
			b.frames = append(b.frames, p)
		}
		return 0
	}
	for _, f := range b.frames[n:] {
		mem.Physmem.Refdown(f)
	}
	b.frames = b.frames[:n]
	return 0
}

/// Map installs this block's frames into as starting at uva, with perms
/// PTE_U[|PTE_W]. Each mapping takes its own reference on every frame via
/// Vmadd_shared/Page_insert, so unmapping one address space never affects
/// another's view.
func (b *Block) Map(as *vm.Vm_t, uva int, perms mem.Pa_t) defs.Err_t {
	as.Vmadd_shared(uva, len(b.frames)*mem.PGSIZE, perms, b.frames)
	return 0
}

/// Close drops this handle's reference to the block's frames. Since every
/// mapping already took its own reference via Page_insert, Close here
/// releases only the allocation-time reference taken by New — the frames
/// stay alive as long as any address space still maps them.
func (b *Block) Close() defs.Err_t {
	for _, f := range b.frames {
		mem.Physmem.Refdown(f)
	}
	return 0
}

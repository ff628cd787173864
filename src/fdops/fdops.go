// Package fdops defines the small interfaces that let the IPC primitives
// of spec §4.8 (pipe, shared memory) move bytes to and from a caller
// without depending on whether that caller is a syscall argument buffer, a
// circular buffer, or another kernel object. Adapted from the teacher's
// fdops package, trimmed to the Userio_i surface circbuf.Circbuf_t needs;
// the teacher's broader Fdops_i (the full file-descriptor operation set:
// open/close/select/pathname resolution) has no home here since this
// kernel has no filesystem, only the capability surface in src/kobj.
package fdops

import "corekernel/src/defs"

/// Userio_i moves bytes between a caller-supplied buffer and whatever
/// medium implements it (a user-supplied syscall argument slice, another
/// kernel buffer, ...).
type Userio_i interface {
	/// Uioread copies into dst, returning the number of bytes copied.
	Uioread(dst []uint8) (int, defs.Err_t)
	/// Uiowrite copies from src, returning the number of bytes copied.
	Uiowrite(src []uint8) (int, defs.Err_t)
}

/// Useriobuf adapts a plain byte slice to Userio_i, standing in for a
/// syscall's user-supplied buffer argument once it has already been
/// copied into (or will be copied out of) kernel memory.
type Useriobuf struct {
	buf []uint8
	off int
}

/// MkUseriobuf wraps buf as a Userio_i that reads/writes starting at its
/// first byte.
func MkUseriobuf(buf []uint8) *Useriobuf {
	return &Useriobuf{buf: buf}
}

func (u *Useriobuf) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, u.buf[u.off:])
	u.off += n
	return n, 0
}

func (u *Useriobuf) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(u.buf[u.off:], src)
	u.off += n
	return n, 0
}

/// Remaining returns the slice of buf not yet consumed.
func (u *Useriobuf) Remaining() []uint8 {
	return u.buf[u.off:]
}

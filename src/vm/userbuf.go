package vm

import "fmt"

import "corekernel/src/defs"

/// Userbuf_t assists reading and writing user memory through the
/// fdops.Userio_i interface, so syscalls and IPC primitives that move
/// bytes to/from a caller's buffer (pipe reads, shared-memory setup) don't
/// need to know whether the buffer backing them is a kernel slice or a
/// live user mapping.
type Userbuf_t struct {
	userva int
	len    int
	off    int // 0 <= off <= len
	as     *Vm_t
}

func (ub *Userbuf_t) ub_init(as *Vm_t, uva, length int) {
	if length < 0 {
		panic("negative length")
	}
	if length >= 1<<39 {
		fmt.Printf("suspiciously large user buffer (%v)\n", length)
	}
	ub.userva = uva
	ub.len = length
	ub.off = 0
	ub.as = as
}

/// Remain returns the number of unread/unwritten bytes left in the buffer.
func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

/// Totalsz reports the total size of the buffer in bytes.
func (ub *Userbuf_t) Totalsz() int {
	return ub.len
}

/// Uioread copies from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	ub.as.Lock_pmap()
	a, b := ub._tx(dst, false)
	ub.as.Unlock_pmap()
	return a, b
}

/// Uiowrite copies src into user memory.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	ub.as.Lock_pmap()
	a, b := ub._tx(src, true)
	ub.as.Unlock_pmap()
	return a, b
}

// _tx copies min(len(buf), ub.Remain()) bytes. If an error occurs partway,
// ub's offset reflects the bytes already copied so the call can be
// restarted.
func (ub *Userbuf_t) _tx(buf []uint8, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		va := ub.userva + ub.off
		ubuf, err := ub.as.Userdmap8_inner(va, write)
		if err != 0 {
			return ret, err
		}
		end := ub.off + len(ubuf)
		if end > ub.len {
			left := ub.len - ub.off
			ubuf = ubuf[:left]
		}
		var c int
		if write {
			c = copy(ubuf, buf)
		} else {
			c = copy(buf, ubuf)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
	}
	return ret, 0
}

/// Fakeubuf_t implements the same Userio_i-shaped interface as Userbuf_t
/// but operates on a plain kernel buffer, for kernel code that wants to
/// treat its own memory like a user buffer (e.g. building a syscall result
/// in a scratch slice before deciding where it goes).
type Fakeubuf_t struct {
	fbuf []uint8
	len  int
}

/// Fake_init sets up the fake buffer over buf.
func (fb *Fakeubuf_t) Fake_init(buf []uint8) {
	fb.fbuf = buf
	fb.len = len(fb.fbuf)
}

/// Remain returns the number of bytes left in the fake buffer.
func (fb *Fakeubuf_t) Remain() int {
	return len(fb.fbuf)
}

/// Totalsz returns the total length of the fake buffer.
func (fb *Fakeubuf_t) Totalsz() int {
	return fb.len
}

func (fb *Fakeubuf_t) _tx(buf []uint8, tofbuf bool) (int, defs.Err_t) {
	var c int
	if tofbuf {
		c = copy(fb.fbuf, buf)
	} else {
		c = copy(buf, fb.fbuf)
	}
	fb.fbuf = fb.fbuf[c:]
	return c, 0
}

/// Uioread copies from the fake buffer into dst.
func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return fb._tx(dst, false)
}

/// Uiowrite copies src into the fake buffer.
func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return fb._tx(src, true)
}

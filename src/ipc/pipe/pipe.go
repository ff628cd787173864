// Package pipe implements Pipe (spec §4.8): a byte stream with one reader
// end and one writer end, backed by circbuf.Circbuf_t. There is no pipe
// precedent in the retrieved teacher tree (its fs/pipe.go lived in the
// deleted filesystem layer), so the blocking shape here is new code,
// grounded on the one blocking-wait pattern the teacher does show
// (tinfo.Tnote_t's Killnaps) and generalized with the thread package's
// explicit Block/Wake handoff.
package pipe

import (
	"context"
	"sync"

	"corekernel/src/circbuf"
	"corekernel/src/defs"
	"corekernel/src/fdops"
	"corekernel/src/mem"
	"corekernel/src/thread"
)

const pipesz = int(mem.PGSIZE)

/// Pipe is the shared state behind a pipe's two handles: a circular buffer
/// plus the waiter lists that let a full writer or an empty reader block
/// until the other end makes progress.
type Pipe struct {
	mu   sync.Mutex
	cb   circbuf.Circbuf_t
	rcnt int // live reader ends
	wcnt int // live writer ends

	readers []*thread.Thread // blocked in Read, waiting for data or wcnt==0
	writers []*thread.Thread // blocked in Write, waiting for room or rcnt==0
}

/// New constructs a Pipe with one reader end and one writer end, backed by
/// the page allocator m.
func New(m mem.Page_i) *Pipe {
	p := &Pipe{rcnt: 1, wcnt: 1}
	p.cb.Cb_init(pipesz, m)
	return p
}

/// ReadEnd and WriteEnd are the two handles installed in a process's
/// HandleTable after Pipe creation; each wraps the shared Pipe and
/// implements kobj.KObj plus kobj.Reader or kobj.Writer.
type ReadEnd struct{ p *Pipe }
type WriteEnd struct{ p *Pipe }

func NewEnds(m mem.Page_i) (*ReadEnd, *WriteEnd) {
	p := New(m)
	return &ReadEnd{p}, &WriteEnd{p}
}

func (r *ReadEnd) Close() defs.Err_t {
	p := r.p
	p.mu.Lock()
	p.rcnt--
	done := p.rcnt == 0
	writers := p.writers
	p.writers = nil
	p.mu.Unlock()
	if done {
		for _, w := range writers {
			w.Wake()
		}
	}
	if done && p.wcnt == 0 {
		p.mu.Lock()
		p.cb.Cb_release()
		p.mu.Unlock()
	}
	return 0
}

func (w *WriteEnd) Close() defs.Err_t {
	p := w.p
	p.mu.Lock()
	p.wcnt--
	done := p.wcnt == 0
	readers := p.readers
	p.readers = nil
	p.mu.Unlock()
	if done {
		for _, r := range readers {
			r.Wake()
		}
	}
	if done && p.rcnt == 0 {
		p.mu.Lock()
		p.cb.Cb_release()
		p.mu.Unlock()
	}
	return 0
}

/// Read blocks until the pipe has data, the write end is closed (returning
/// a short or empty read), or ctx carries no thread (a programming error:
/// every syscall-originated Read must carry one).
func (r *ReadEnd) Read(ctx context.Context, dst fdops.Userio_i) (int, defs.Err_t) {
	p := r.p
	for {
		p.mu.Lock()
		if !p.cb.Empty() || p.wcnt == 0 {
			n, err := p.cb.Copyout(dst)
			wake := p.writers
			p.writers = nil
			p.mu.Unlock()
			for _, w := range wake {
				w.Wake()
			}
			return n, err
		}
		t, ok := thread.FromContext(ctx)
		if !ok {
			p.mu.Unlock()
			return 0, -defs.EINVAL
		}
		p.readers = append(p.readers, t)
		p.mu.Unlock()
		t.Block()
	}
}

/// Write blocks until the pipe has room, the read end is closed (returning
/// EPIPE), or ctx carries no thread.
func (w *WriteEnd) Write(ctx context.Context, src fdops.Userio_i) (int, defs.Err_t) {
	p := w.p
	for {
		p.mu.Lock()
		if p.rcnt == 0 {
			p.mu.Unlock()
			return 0, -defs.EPIPE
		}
		if !p.cb.Full() {
			n, err := p.cb.Copyin(src)
			wake := p.readers
			p.readers = nil
			p.mu.Unlock()
			for _, r := range wake {
				r.Wake()
			}
			return n, err
		}
		t, ok := thread.FromContext(ctx)
		if !ok {
			p.mu.Unlock()
			return 0, -defs.EINVAL
		}
		p.writers = append(p.writers, t)
		p.mu.Unlock()
		t.Block()
	}
}

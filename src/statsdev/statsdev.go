// Package statsdev implements the D_STAT and D_PROF devices (spec §6
// EXPANSION): read-only kobjs that render the kernel's free-running
// counters (src/stats) as, respectively, human-readable text and a
// gzip-compressed pprof profile. No stat/pprof device exists in the
// retrieved teacher tree to adapt directly (its nearest analogue, the
// teacher's own src/stat command, dumps /proc-style counters to a
// terminal rather than exposing them as a kernel object) — this is new
// code wiring src/stats.Render and github.com/google/pprof/profile
// against the same counters.
package statsdev

import (
	"bytes"
	"context"

	"github.com/google/pprof/profile"

	"corekernel/src/defs"
	"corekernel/src/fdops"
	"corekernel/src/stats"
)

/// Snapshot is anything whose fields src/stats.Render can format: the
/// kernel's accumulated Counter_t/Cycles_t fields, e.g. a syscall-count or
/// page-fault struct assembled by src/kernel at boot.
type Snapshot interface{}

/// StatDev is the D_STAT kobj: a read-only stream of render's text. The
/// text is rendered once, on the first Read, and later Reads continue
/// through that same buffer, so the counters are those of the first Read.
type StatDev struct {
	snapshot func() Snapshot
	off      int
	buf      []byte
}

/// NewStatDev returns a StatDev that renders snapshot() on first Read.
func NewStatDev(snapshot func() Snapshot) *StatDev {
	return &StatDev{snapshot: snapshot}
}

func (d *StatDev) Close() defs.Err_t { return 0 }

func (d *StatDev) Read(_ context.Context, dst fdops.Userio_i) (int, defs.Err_t) {
	if d.buf == nil {
		d.buf = []byte(stats.Render(d.snapshot()))
	}
	n, err := dst.Uiowrite(d.buf[d.off:])
	d.off += n
	return n, err
}

/// ProfDev is the D_PROF kobj: one pprof-format sample per counter field,
/// gzip-encoded per profile.Write, generated once on the first Read and
/// then served from that buffer, the same way StatDev is.
type ProfDev struct {
	snapshot func() Snapshot
	off      int
	buf      []byte
}

/// NewProfDev returns a ProfDev that renders snapshot() as a pprof
/// profile on first Read.
func NewProfDev(snapshot func() Snapshot) *ProfDev {
	return &ProfDev{snapshot: snapshot}
}

func (d *ProfDev) Close() defs.Err_t { return 0 }

func (d *ProfDev) Read(_ context.Context, dst fdops.Userio_i) (int, defs.Err_t) {
	if d.buf == nil {
		buf, err := render(d.snapshot())
		if err != 0 {
			return 0, err
		}
		d.buf = buf
	}
	n, err := dst.Uiowrite(d.buf[d.off:])
	d.off += n
	return n, err
}

// render turns snapshot into a one-sample-per-counter pprof profile: each
// counter/cycle field becomes its own synthetic location/function pair
// (named after the Go struct field) carrying a single sample value, which
// is enough structure for `pprof -top` to list every counter by name.
func render(snap Snapshot) ([]byte, defs.Err_t) {
	fields := stats.Fields(snap)
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "count", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "count", Unit: "count"},
		Period:     1,
	}
	for i, f := range fields {
		fn := &profile.Function{ID: uint64(i + 1), Name: f.Name, SystemName: f.Name}
		loc := &profile.Location{ID: uint64(i + 1), Line: []profile.Line{{Function: fn, Line: 1}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{f.Value},
		})
	}
	var b bytes.Buffer
	if err := p.Write(&b); err != nil {
		return nil, -defs.EINVAL
	}
	return b.Bytes(), 0
}

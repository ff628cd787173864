// Package stats holds the kernel's free-running counters, adapted from the
// teacher's stats package. The teacher gates counting behind a Stats/Timing
// compile-time flag backed by a patched runtime.Rdtsc(); we run on a stock
// runtime, so Cycles_t measures wall-clock nanoseconds via time.Now()
// instead of a cycle counter, and counting is always enabled — these
// counters are cheap atomics and are exactly what the D_STAT/D_PROF
// devices (spec §6 EXPANSION) render to callers.
package stats

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Nirqs is a per-vector interrupt counter and Irqs their total; nothing in
// this kernel increments them.
var Nirqs [100]int64
var Irqs int64

/// Now returns a wall-clock (Unix) nanosecond timestamp suitable for
/// Cycles_t.Add.
func Now() uint64 {
	return uint64(time.Now().UnixNano())
}

/// Counter_t is a free-running statistical counter.
type Counter_t int64

/// Cycles_t holds accumulated nanoseconds of some activity.
type Cycles_t int64

/// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	n := (*int64)(unsafe.Pointer(c))
	atomic.AddInt64(n, 1)
}

/// Load returns the counter's current value.
func (c *Counter_t) Load() int64 {
	n := (*int64)(unsafe.Pointer(c))
	return atomic.LoadInt64(n)
}

/// Add adds elapsed nanoseconds since m to the counter.
func (c *Cycles_t) Add(m uint64) {
	n := (*int64)(unsafe.Pointer(c))
	atomic.AddInt64(n, int64(Now()-m))
}

/// Load returns the accumulated nanosecond count.
func (c *Cycles_t) Load() int64 {
	n := (*int64)(unsafe.Pointer(c))
	return atomic.LoadInt64(n)
}

var printer = message.NewPrinter(language.English)

/// Render converts a struct of Counter_t/Cycles_t fields to a printable,
/// thousands-separated string, for the D_STAT device.
func Render(st interface{}) string {
	v := reflect.ValueOf(st)
	var b strings.Builder
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		name := v.Type().Field(i).Name
		switch {
		case strings.HasSuffix(t, "Counter_t"):
			n := v.Field(i).Interface().(Counter_t)
			fmt.Fprintf(&b, "%s: %s\n", name, printer.Sprintf("%d", int64(n)))
		case strings.HasSuffix(t, "Cycles_t"):
			n := v.Field(i).Interface().(Cycles_t)
			fmt.Fprintf(&b, "%s: %sns\n", name, printer.Sprintf("%d", int64(n)))
		}
	}
	return b.String()
}

/// Field is one named counter value, as extracted by Fields.
type Field struct {
	Name  string
	Value int64
}

/// Fields extracts the same Counter_t/Cycles_t fields Render walks, as
/// plain (name, value) pairs, for callers that need structured access
/// instead of preformatted text (the D_PROF device's pprof encoding).
func Fields(st interface{}) []Field {
	v := reflect.ValueOf(st)
	var fields []Field
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		name := v.Type().Field(i).Name
		switch {
		case strings.HasSuffix(t, "Counter_t"):
			n := v.Field(i).Interface().(Counter_t)
			fields = append(fields, Field{name, int64(n)})
		case strings.HasSuffix(t, "Cycles_t"):
			n := v.Field(i).Interface().(Cycles_t)
			fields = append(fields, Field{name, int64(n)})
		}
	}
	return fields
}

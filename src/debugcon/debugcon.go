// Package debugcon implements the kernel's debug console (spec §6): in
// the real system this fans out to the serial port, the Bochs 0xe9 debug
// port, and VGA text memory; hosted here as one io.Writer sink behind a
// single lock, module-prefixed per line, grounded on the original Rust
// Kernel/logging.rs's Writer (one static lock, "[module] " prefix written
// before the caller's text).
package debugcon

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"corekernel/src/defs"
	"corekernel/src/fdops"
)

var (
	mu   sync.Mutex
	sink io.Writer = os.Stderr
)

/// SetSink redirects debug console output, for tests that want to capture
/// it instead of writing to stderr.
func SetSink(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
}

/// Printf writes one module-prefixed line to the debug console.
func Printf(module, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(sink, "[%s] "+format, append([]interface{}{module}, args...)...)
}

/// Console is the D_CONSOLE kobj installed as handles 0 and 1 (stdin and
/// stdout by convention, spec §6) in a freshly spawned process: reads
/// always return 0 (no keyboard driver in this hosted simulation, see
/// spec.md's explicit Non-goals), writes go to the debug console under
/// module "user".
type Console struct{}

func (Console) Close() defs.Err_t { return 0 }

func (Console) Read(_ context.Context, _ fdops.Userio_i) (int, defs.Err_t) {
	return 0, 0
}

func (Console) Write(_ context.Context, src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, 512)
	total := 0
	for {
		n, err := src.Uioread(buf)
		if n > 0 {
			mu.Lock()
			fmt.Fprintf(sink, "[user] %s", buf[:n])
			mu.Unlock()
			total += n
		}
		if err != 0 {
			return total, err
		}
		if n == 0 {
			return total, 0
		}
	}
}

/// Devnull is the D_DEVNULL kobj: reads always report EOF, writes always
/// discard their input and report success, matching /dev/null semantics.
type Devnull struct{}

func (Devnull) Close() defs.Err_t { return 0 }

func (Devnull) Read(_ context.Context, _ fdops.Userio_i) (int, defs.Err_t) {
	return 0, 0
}

func (Devnull) Write(_ context.Context, src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, 512)
	total := 0
	for {
		n, err := src.Uioread(buf)
		total += n
		if err != 0 {
			return total, err
		}
		if n == 0 {
			return total, 0
		}
	}
}

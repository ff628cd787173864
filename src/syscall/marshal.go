package syscall

import (
	"corekernel/src/defs"
	"corekernel/src/ustr"
	"corekernel/src/vm"
)

/// Regs stands in for the six argument registers and the syscall number
/// register of spec §4.7/§6's real register-convention ABI: Num carries
/// the syscall number, Args the up-to-six arguments, in the order
/// src/proc's Entry closures (the simulated compiled user program) issue
/// them through Dispatch.
type Regs struct {
	Num  uintptr
	Args [6]uintptr
}

func argInt(r *Regs, i int) int {
	return int(r.Args[i])
}

func argHandle(r *Regs, i int) defs.Handle_t {
	return defs.Handle_t(r.Args[i])
}

// argBytes copies an immutable n-byte user buffer (a syscall's
// input argument, e.g. write's buf) out of as starting at user address
// va, performing the single bounds/ownership check per pointer argument
// spec §4.7 requires.
func argBytes(as *vm.Vm_t, va uintptr, n int) ([]byte, defs.Err_t) {
	buf := make([]byte, n)
	if err := as.User2k(buf, int(va)); err != 0 {
		return nil, err
	}
	return buf, 0
}

// argMutBytes returns a fresh n-byte buffer for a syscall handler to fill
// (e.g. read's output buffer) plus a flush closure that copies the result
// back to user address va.
func argMutBytes(as *vm.Vm_t, va uintptr, n int) ([]byte, func([]byte) defs.Err_t) {
	buf := make([]byte, n)
	flush := func(filled []byte) defs.Err_t {
		return as.K2user(filled, int(va))
	}
	return buf, flush
}

// argStr copies a NUL-terminated user string, up to lenmax bytes.
func argStr(as *vm.Vm_t, va uintptr, lenmax int) (ustr.Ustr, defs.Err_t) {
	return as.Userstr(int(va), lenmax)
}

// result encodes the syscall return convention (spec §6): negative values
// decode to an ErrNum, non-negative are the success payload.
func result(v uintptr, err defs.Err_t) uintptr {
	if err != 0 {
		return uintptr(int64(err))
	}
	return v
}

// Package testelf hand-builds minimal ELF64 executables for tests that
// need a real, debug/elf-parseable binary without a C toolchain: initrd
// entries must survive initrd.LoadELF's elf.NewFile parse, and
// golang.org/x/tools/txtar (spec §8's fixture format for everything else)
// is explicitly text-only, so the binary bytes here are built by hand
// instead of embedded as a txtar file.
package testelf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const (
	ehdrSize = 64
	phdrSize = 56

	// Vaddr is the virtual address of the single PT_LOAD segment this
	// package builds, and also the entry point: it sits exactly at
	// vm.USERMIN (one page), the lowest address a user mapping may
	// occupy.
	Vaddr = 0x1000
)

// Build returns a minimal ELF64, ET_EXEC, EM_X86_64 executable with one
// R+X PT_LOAD segment at Vaddr holding code, entering at Vaddr. code may
// be any byte slice; this kernel never executes it (src/proc.Entry drives
// a spawned process's behavior, not loaded machine code — see
// src/proc's doc comment), so it need not even be valid x86-64.
func Build(code []byte) []byte {
	var buf bytes.Buffer

	ident := [elf.EI_NIDENT]byte{}
	ident[0], ident[1], ident[2], ident[3] = '\x7f', 'E', 'L', 'F'
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	hdr := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     Vaddr,
		Phoff:     ehdrSize,
		Shoff:     0,
		Flags:     0,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     1,
		Shentsize: 0,
		Shnum:     0,
		Shstrndx:  0,
	}
	binary.Write(&buf, binary.LittleEndian, &hdr)

	phdr := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    ehdrSize + phdrSize,
		Vaddr:  Vaddr,
		Paddr:  Vaddr,
		Filesz: uint64(len(code)),
		Memsz:  uint64(len(code)),
		Align:  0x1000,
	}
	binary.Write(&buf, binary.LittleEndian, &phdr)

	buf.Write(code)
	return buf.Bytes()
}

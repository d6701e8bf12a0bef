// Package elftest synthesizes small ELF executables for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Prog is one program header plus its file content.
type Prog struct {
	Data    []byte
	VAddr   uint64
	MemSize uint64
	Align   uint64
	Type    elf.ProgType
	Flags   elf.ProgFlag
}

// File describes an executable to synthesize. Zero Class and Data default
// to ELFCLASS64 little endian.
type File struct {
	Progs   []Prog
	Entry   uint64
	Class   elf.Class
	Data    elf.Data
	Machine elf.Machine
}

// Load returns a PT_LOAD prog with the given address, content and memsz.
func Load(vaddr uint64, data []byte, memsz uint64) Prog {
	return Prog{
		Type:    elf.PT_LOAD,
		Flags:   elf.PF_R | elf.PF_X,
		VAddr:   vaddr,
		Data:    data,
		MemSize: memsz,
		Align:   0x1000,
	}
}

// Fill returns n bytes of a repeating pattern seeded by seed.
func Fill(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
		if b[i] == 0 {
			b[i] = 0xa5
		}
	}
	return b
}

// Bytes encodes the file. Program headers follow the ELF header and segment
// contents follow the program header table in order.
func (f File) Bytes() []byte {
	class := f.Class
	if class == elf.ELFCLASSNONE {
		class = elf.ELFCLASS64
	}
	data := f.Data
	if data == elf.ELFDATANONE {
		data = elf.ELFDATA2LSB
	}
	machine := f.Machine
	if machine == elf.EM_NONE {
		machine = elf.EM_X86_64
		if class == elf.ELFCLASS32 {
			machine = elf.EM_386
		}
	}

	var order binary.ByteOrder = binary.LittleEndian
	if data == elf.ELFDATA2MSB {
		order = binary.BigEndian
	}

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(class)
	ident[elf.EI_DATA] = byte(data)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var (
		ehsize, phentsize int
	)
	if class == elf.ELFCLASS32 {
		ehsize, phentsize = 52, 32
	} else {
		ehsize, phentsize = 64, 56
	}

	phoff := ehsize
	off := uint64(phoff + phentsize*len(f.Progs))

	var buf bytes.Buffer
	if class == elf.ELFCLASS32 {
		hdr := elf.Header32{
			Ident:     ident,
			Type:      uint16(elf.ET_EXEC),
			Machine:   uint16(machine),
			Version:   uint32(elf.EV_CURRENT),
			Entry:     uint32(f.Entry),
			Phoff:     uint32(phoff),
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(len(f.Progs)),
		}
		mustWrite(&buf, order, hdr)
		for _, p := range f.Progs {
			mustWrite(&buf, order, elf.Prog32{
				Type:   uint32(p.Type),
				Off:    uint32(off),
				Vaddr:  uint32(p.VAddr),
				Paddr:  uint32(p.VAddr),
				Filesz: uint32(len(p.Data)),
				Memsz:  uint32(p.MemSize),
				Flags:  uint32(p.Flags),
				Align:  uint32(p.Align),
			})
			off += uint64(len(p.Data))
		}
	} else {
		hdr := elf.Header64{
			Ident:     ident,
			Type:      uint16(elf.ET_EXEC),
			Machine:   uint16(machine),
			Version:   uint32(elf.EV_CURRENT),
			Entry:     f.Entry,
			Phoff:     uint64(phoff),
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(len(f.Progs)),
		}
		mustWrite(&buf, order, hdr)
		for _, p := range f.Progs {
			mustWrite(&buf, order, elf.Prog64{
				Type:   uint32(p.Type),
				Flags:  uint32(p.Flags),
				Off:    off,
				Vaddr:  p.VAddr,
				Paddr:  p.VAddr,
				Filesz: uint64(len(p.Data)),
				Memsz:  p.MemSize,
				Align:  p.Align,
			})
			off += uint64(len(p.Data))
		}
	}

	for _, p := range f.Progs {
		buf.Write(p.Data)
	}
	return buf.Bytes()
}

func mustWrite(buf *bytes.Buffer, order binary.ByteOrder, v any) {
	if err := binary.Write(buf, order, v); err != nil {
		panic(err)
	}
}

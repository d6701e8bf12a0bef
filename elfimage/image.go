package elfimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"

	"github.com/wippyai/flatimg/errors"
)

// Image is the parsed view of an executable.
type Image struct {
	ByteOrder binary.ByteOrder
	Segments  []Segment
	Entry     uint64
	Class     elf.Class
	Machine   elf.Machine
	Type      elf.Type
}

// Parse decodes an in-memory ELF image.
func Parse(data []byte) (*Image, error) {
	return Read(bytes.NewReader(data))
}

// Read decodes an ELF image from r. Segment contents keep referencing r.
func Read(r io.ReaderAt) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindMalformedImage, err,
			"not a valid ELF executable")
	}

	img := &Image{
		ByteOrder: f.ByteOrder,
		Entry:     f.Entry,
		Class:     f.Class,
		Machine:   f.Machine,
		Type:      f.Type,
		Segments:  make([]Segment, 0, len(f.Progs)),
	}

	for i, p := range f.Progs {
		seg := Segment{
			Content:  p.ReaderAt,
			VAddr:    p.Vaddr,
			PAddr:    p.Paddr,
			FileSize: p.Filesz,
			MemSize:  p.Memsz,
			Align:    p.Align,
			Index:    i,
			Type:     p.Type,
			Flags:    p.Flags,
		}
		if seg.Loadable() {
			if err := seg.Check(); err != nil {
				return nil, err
			}
		}
		img.Segments = append(img.Segments, seg)
	}

	return img, nil
}

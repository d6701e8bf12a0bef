package elfimage

import (
	"bytes"
	"debug/elf"
	"io"

	"github.com/wippyai/flatimg/errors"
)

// Segment describes one program header. Content holds FileSize bytes starting
// at offset zero; bytes between FileSize and MemSize are zero at run time and
// are not stored.
type Segment struct {
	Content  io.ReaderAt
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
	Index    int
	Type     elf.ProgType
	Flags    elf.ProgFlag
}

// NewSegment builds a loadable segment from in-memory content. FileSize is
// len(content).
func NewSegment(index int, vaddr, memsz uint64, content []byte) Segment {
	return Segment{
		Content:  bytes.NewReader(content),
		VAddr:    vaddr,
		PAddr:    vaddr,
		FileSize: uint64(len(content)),
		MemSize:  memsz,
		Index:    index,
		Type:     elf.PT_LOAD,
		Flags:    elf.PF_R,
	}
}

// Loadable reports whether the segment is copied into memory at load time.
func (s Segment) Loadable() bool {
	return s.Type == elf.PT_LOAD
}

// Contains reports whether addr falls in [VAddr, VAddr+MemSize).
func (s Segment) Contains(addr uint64) bool {
	return addr >= s.VAddr && addr-s.VAddr < s.MemSize
}

// End returns the first virtual address past the segment and false when
// VAddr+MemSize does not fit in 64 bits.
func (s Segment) End() (uint64, bool) {
	end := s.VAddr + s.MemSize
	return end, end >= s.VAddr
}

// BSSSize returns the number of zero-filled bytes that follow the content.
func (s Segment) BSSSize() uint64 {
	if s.MemSize < s.FileSize {
		return 0
	}
	return s.MemSize - s.FileSize
}

// Check validates the memsz >= filesz invariant.
func (s Segment) Check() error {
	if s.MemSize < s.FileSize {
		return errors.MalformedImage(errors.PhaseParse, s.Index,
			"memsz %#x smaller than filesz %#x", s.MemSize, s.FileSize)
	}
	return nil
}

// Open returns a reader over exactly FileSize content bytes.
func (s Segment) Open() io.Reader {
	if s.Content == nil || s.FileSize == 0 {
		return bytes.NewReader(nil)
	}
	return io.NewSectionReader(s.Content, 0, int64(s.FileSize))
}

// Data reads the whole content into memory. A segment whose content ends
// before FileSize bytes is malformed.
func (s Segment) Data() ([]byte, error) {
	buf := make([]byte, s.FileSize)
	if s.FileSize == 0 {
		return buf, nil
	}
	if s.Content == nil {
		return nil, errors.MalformedImage(errors.PhaseParse, s.Index, "segment has no content")
	}
	n, err := s.Content.ReadAt(buf, 0)
	if uint64(n) < s.FileSize {
		return nil, errors.New(errors.PhaseParse, errors.KindMalformedImage).
			Segment(s.Index).
			Cause(err).
			Detail("content truncated at %#x of %#x bytes", n, s.FileSize).
			Build()
	}
	return buf, nil
}

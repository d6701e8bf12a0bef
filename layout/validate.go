package layout

import (
	"fmt"

	"github.com/wippyai/flatimg/elfimage"
	"github.com/wippyai/flatimg/errors"
)

// ValidateContiguous checks that segs are packed back to back in virtual
// memory in table order, which is what the flat layout assumes. Segments with
// a zero in-memory size take no space and are skipped.
func ValidateContiguous(segs []elfimage.Segment) error {
	var prev *elfimage.Segment
	for i := range segs {
		seg := &segs[i]
		if err := seg.Check(); err != nil {
			return err
		}
		if seg.MemSize == 0 {
			continue
		}
		if _, ok := seg.End(); !ok {
			return errors.LayoutMismatch(seg.Index, "segment at %#x with memsz %#x wraps the address space",
				seg.VAddr, seg.MemSize)
		}
		if prev != nil {
			want, _ := prev.End()
			if seg.VAddr != want {
				return errors.New(errors.PhaseValidate, errors.KindLayoutMismatch).
					Segment(seg.Index).
					Value(seg.VAddr).
					Detail("starts at %#x, flat layout places it at %#x right after segment %d",
						seg.VAddr, want, prev.Index).
					Build()
			}
		}
		prev = seg
	}
	return nil
}

// Overlap is a pair of segments whose virtual ranges intersect.
type Overlap struct {
	First  int
	Second int
}

// FindOverlaps reports every pair of segments with intersecting
// [VAddr, VAddr+MemSize) ranges, by program header index.
func FindOverlaps(segs []elfimage.Segment) []Overlap {
	var out []Overlap
	for i := 0; i < len(segs); i++ {
		a := segs[i]
		if a.MemSize == 0 {
			continue
		}
		for j := i + 1; j < len(segs); j++ {
			b := segs[j]
			if b.MemSize == 0 {
				continue
			}
			if a.Contains(b.VAddr) || b.Contains(a.VAddr) {
				out = append(out, Overlap{First: a.Index, Second: b.Index})
			}
		}
	}
	return out
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

package layout

import (
	"github.com/wippyai/flatimg/elfimage"
	"github.com/wippyai/flatimg/errors"
)

// Placement is a segment together with its offset in the flat image.
type Placement struct {
	Segment elfimage.Segment
	Offset  uint64
}

// End returns the flat offset just past the segment's in-memory size.
func (p Placement) End() uint64 {
	return p.Offset + p.Segment.MemSize
}

// FileEnd returns the flat offset just past the segment's file content.
func (p Placement) FileEnd() uint64 {
	return p.Offset + p.Segment.FileSize
}

// Layout is the ordered list of placements making up a flat image.
// Placements are gapless: each one starts where the previous one ends.
type Layout struct {
	Placements []Placement
	size       uint64
}

// Size returns the flat image length in bytes.
func (l *Layout) Size() uint64 {
	if l == nil {
		return 0
	}
	return l.size
}

// Len returns the number of placed segments.
func (l *Layout) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Placements)
}

// append places seg at the current end of the layout.
func (l *Layout) append(seg elfimage.Segment) (Placement, error) {
	if err := seg.Check(); err != nil {
		return Placement{}, err
	}
	next := l.size + seg.MemSize
	if next < l.size {
		return Placement{}, errors.MalformedImage(errors.PhaseFlatten, seg.Index,
			"flat image size overflows 64 bits")
	}
	p := Placement{Segment: seg, Offset: l.size}
	l.Placements = append(l.Placements, p)
	l.size = next
	return p, nil
}

// Plan computes the layout of segs without writing anything.
func Plan(segs []elfimage.Segment) (*Layout, error) {
	l := &Layout{Placements: make([]Placement, 0, len(segs))}
	for _, seg := range segs {
		if _, err := l.append(seg); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// SelectLoadable returns the PT_LOAD segments of segs in their original
// order. Table order decides the flat layout, so nothing is sorted.
func SelectLoadable(segs []elfimage.Segment) []elfimage.Segment {
	out := make([]elfimage.Segment, 0, len(segs))
	for _, s := range segs {
		if s.Loadable() {
			out = append(out, s)
		}
	}
	return out
}

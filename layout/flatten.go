package layout

import (
	"io"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/wippyai/flatimg/elfimage"
	"github.com/wippyai/flatimg/errors"
	"github.com/wippyai/flatimg/layout/internal/stream"
)

// Flatten writes the flat image of segs to w in a single pass and returns
// the layout it wrote. Each segment's file content is followed by zero
// padding up to its in-memory size.
//
// Write errors are returned as KindIO; content that ends before FileSize
// bytes is KindMalformedImage. On error, whatever already reached w is not a
// valid image.
func Flatten(w io.Writer, segs []elfimage.Segment) (*Layout, error) {
	out := stream.NewWriter(w)
	l := &Layout{Placements: make([]Placement, 0, len(segs))}

	for _, seg := range segs {
		p, err := l.append(seg)
		if err != nil {
			return nil, err
		}

		Logger().Debug("placing segment",
			zap.Int("segment", seg.Index),
			zap.String("vaddr", hex(seg.VAddr)),
			zap.String("flat_offset", hex(p.Offset)),
			zap.String("filesz", hex(seg.FileSize)),
			zap.String("memsz", hex(seg.MemSize)))

		copied, err := out.CopyN(seg.Open(), seg.FileSize)
		if err != nil {
			if werr := out.Err(); werr != nil {
				return nil, errors.New(errors.PhaseFlatten, errors.KindIO).
					Segment(seg.Index).
					Cause(werr).
					Detail("writing segment content").
					Build()
			}
			return nil, errors.New(errors.PhaseFlatten, errors.KindMalformedImage).
				Segment(seg.Index).
				Cause(err).
				Detail("content truncated at %#x of %#x bytes", copied, seg.FileSize).
				Build()
		}

		if err := out.Zero(seg.BSSSize()); err != nil {
			return nil, errors.New(errors.PhaseFlatten, errors.KindIO).
				Segment(seg.Index).
				Cause(err).
				Detail("writing %#x bytes of zero padding", seg.BSSSize()).
				Build()
		}

		if out.Len() != l.size {
			return nil, errors.New(errors.PhaseFlatten, errors.KindIO).
				Segment(seg.Index).
				Detail("wrote %#x bytes, layout expects %#x", out.Len(), l.size).
				Build()
		}
	}

	Logger().Info("flat image written",
		zap.Int("segments", l.Len()),
		zap.Uint64("size", l.size),
		zap.String("size_human", humanize.IBytes(l.size)))

	return l, nil
}

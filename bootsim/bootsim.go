// Package bootsim replays the bootloader's copy of a flat image into a
// sandboxed linear memory and checks the result against the layout.
//
// The bootloader copies the flat image byte for byte to its load address and
// jumps to load address + KERNEL_ENTRY_OFFSET. Verify does the same copy into
// a wazero memory and then reads every segment back through the memory, so a
// disagreement between the image bytes, the recorded offsets and the source
// segments is caught before the image reaches real hardware.
package bootsim

import (
	"bytes"
	"context"
	"io"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/flatimg/bootsim/internal/wasmmod"
	"github.com/wippyai/flatimg/errors"
	"github.com/wippyai/flatimg/layout"
)

const (
	pageSize  = 1 << 16
	maxPages  = 1 << 16
	chunkSize = 1 << 16

	memoryExport = "memory"
)

// Options configures a simulation.
type Options struct {
	// LoadBase is where the image is copied inside linear memory.
	LoadBase uint32
}

// Report summarizes a successful simulation.
type Report struct {
	LoadBase  uint32
	Pages     uint32
	EntryAddr uint32
	EntryByte byte
}

// Verify copies size bytes of image into a fresh linear memory at
// opts.LoadBase and checks every placement of l and the entry target.
func Verify(ctx context.Context, image io.ReaderAt, l *layout.Layout, target layout.EntryTarget, opts Options) (*Report, error) {
	size := l.Size()
	end := uint64(opts.LoadBase) + size
	if end > maxPages*pageSize {
		return nil, errors.Unsupported(errors.PhaseVerify, "simulating images that end past 4 GiB")
	}
	pages := uint32((end + pageSize - 1) / pageSize)
	if pages == 0 {
		pages = 1
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter().WithMemoryLimitPages(maxPages))
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, wasmmod.MemoryModule(memoryExport, pages))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseVerify, errors.KindUnsupported, err, "instantiating simulation memory")
	}
	defer mod.Close(ctx)

	exported := mod.ExportedMemory(memoryExport)
	if exported == nil {
		return nil, errors.Verification(errors.NoSegment, "simulation module exports no %q memory", memoryExport)
	}
	mem := &memory{mem: exported}
	if mem.Size() < end {
		return nil, errors.Verification(errors.NoSegment,
			"simulation memory holds %#x bytes, image needs %#x", mem.Size(), end)
	}

	Logger().Debug("simulating boot copy",
		zap.Uint64("size", size),
		zap.Uint32("load_base", opts.LoadBase),
		zap.Uint32("pages", pages))

	if err := copyImage(mem, image, opts.LoadBase, size); err != nil {
		return nil, err
	}

	for _, p := range l.Placements {
		if err := checkPlacement(mem, opts.LoadBase, p); err != nil {
			return nil, err
		}
	}

	report, err := checkEntry(mem, l, target, opts.LoadBase)
	if err != nil {
		return nil, err
	}
	report.Pages = pages

	Logger().Info("boot simulation passed",
		zap.Int("segments", l.Len()),
		zap.Uint32("entry_addr", report.EntryAddr))
	return report, nil
}

func copyImage(mem *memory, image io.ReaderAt, base uint32, size uint64) error {
	buf := make([]byte, chunkSize)
	for off := uint64(0); off < size; {
		n := uint64(chunkSize)
		if size-off < n {
			n = size - off
		}
		got, err := image.ReadAt(buf[:n], int64(off))
		if uint64(got) < n {
			return errors.New(errors.PhaseVerify, errors.KindVerification).
				Cause(err).
				Detail("flat image ends at %#x, layout expects %#x bytes", off+uint64(got), size).
				Build()
		}
		if err := mem.Write(base+uint32(off), buf[:n]); err != nil {
			return errors.Wrap(errors.PhaseVerify, errors.KindVerification, err, "copying image")
		}
		off += n
	}
	return nil
}

func checkPlacement(mem *memory, base uint32, p layout.Placement) error {
	seg := p.Segment
	want, err := seg.Data()
	if err != nil {
		return err
	}

	start := base + uint32(p.Offset)
	got, err := mem.Read(start, uint32(seg.FileSize))
	if err != nil {
		return errors.Wrap(errors.PhaseVerify, errors.KindVerification, err, "reading segment content")
	}
	if i := mismatch(got, want); i >= 0 {
		return errors.Verification(seg.Index,
			"byte at flat offset %#x is %#x, segment content has %#x",
			p.Offset+uint64(i), got[i], want[i])
	}

	zeroStart := start + uint32(seg.FileSize)
	for off := uint64(0); off < seg.BSSSize(); {
		n := uint64(chunkSize)
		if seg.BSSSize()-off < n {
			n = seg.BSSSize() - off
		}
		got, err := mem.Read(zeroStart+uint32(off), uint32(n))
		if err != nil {
			return errors.Wrap(errors.PhaseVerify, errors.KindVerification, err, "reading segment padding")
		}
		for i, b := range got {
			if b != 0 {
				return errors.Verification(seg.Index,
					"padding byte at flat offset %#x is %#x, want 0",
					p.FileEnd()+off+uint64(i), b)
			}
		}
		off += n
	}
	return nil
}

func checkEntry(mem *memory, l *layout.Layout, target layout.EntryTarget, base uint32) (*Report, error) {
	if target.Placement < 0 || target.Placement >= l.Len() {
		return nil, errors.Verification(errors.NoSegment, "entry placement %d out of range", target.Placement)
	}
	p := l.Placements[target.Placement]
	if target.Offset < p.Offset || target.Offset >= p.End() {
		return nil, errors.Verification(p.Segment.Index,
			"entry offset %#x outside the segment's flat range [%#x, %#x)",
			target.Offset, p.Offset, p.End())
	}

	addr := base + uint32(target.Offset)
	b, err := mem.ReadU8(addr)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseVerify, errors.KindVerification, err, "reading entry byte")
	}
	return &Report{LoadBase: base, EntryAddr: addr, EntryByte: b}, nil
}

func mismatch(got, want []byte) int {
	if bytes.Equal(got, want) {
		return -1
	}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			return i
		}
	}
	return len(want)
}

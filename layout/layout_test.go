package layout

import (
	"bytes"
	"debug/elf"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/flatimg/elfimage"
	flaterrors "github.com/wippyai/flatimg/errors"
	"github.com/wippyai/flatimg/internal/elftest"
)

// twoSegments is segment A (vaddr 0x1000, filesz 0x200, memsz 0x300)
// followed by segment B (vaddr 0x1300, filesz 0x50, memsz 0x50).
func twoSegments() []elfimage.Segment {
	return []elfimage.Segment{
		elfimage.NewSegment(0, 0x1000, 0x300, elftest.Fill(0x200, 1)),
		elfimage.NewSegment(1, 0x1300, 0x50, elftest.Fill(0x50, 2)),
	}
}

func TestSelectLoadable(t *testing.T) {
	segs := []elfimage.Segment{
		elfimage.NewSegment(0, 0x3000, 0x10, nil),
		{Index: 1, Type: elf.PT_NOTE},
		elfimage.NewSegment(2, 0x1000, 0x10, nil),
		{Index: 3, Type: elf.PT_GNU_STACK},
		{Index: 4, Type: elf.PT_DYNAMIC},
	}

	got := SelectLoadable(segs)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index, "table order must be kept")
	assert.Equal(t, 2, got[1].Index)

	assert.Empty(t, SelectLoadable(nil))
	assert.Empty(t, SelectLoadable(segs[1:2]))
}

func TestFlatten_TwoSegments(t *testing.T) {
	segs := twoSegments()
	var buf bytes.Buffer

	l, err := Flatten(&buf, segs)
	require.NoError(t, err)

	assert.Equal(t, uint64(0x350), l.Size())
	assert.Equal(t, 0x350, buf.Len())
	require.Equal(t, 2, l.Len())
	assert.Equal(t, uint64(0), l.Placements[0].Offset)
	assert.Equal(t, uint64(0x300), l.Placements[1].Offset)

	out := buf.Bytes()
	assert.Equal(t, elftest.Fill(0x200, 1), out[:0x200])
	assert.Equal(t, make([]byte, 0x100), out[0x200:0x300], "bss of segment A must be zero")
	assert.Equal(t, elftest.Fill(0x50, 2), out[0x300:0x350])

	target, err := ResolveEntry(l, 0x1010)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10), target.Offset)
	assert.Equal(t, 0, target.Placement)
	assert.Equal(t, 0, target.TableIndex)
}

func TestFlatten_Properties(t *testing.T) {
	tests := []struct {
		name  string
		sizes [][2]uint64 // filesz, memsz
	}{
		{"single no bss", [][2]uint64{{0x40, 0x40}}},
		{"bss in every segment", [][2]uint64{{0x10, 0x80}, {0x20, 0x21}, {0x1, 0x1000}}},
		{"bss only segment", [][2]uint64{{0x30, 0x30}, {0, 0x200}, {0x8, 0x8}}},
		{"empty segment in the middle", [][2]uint64{{0x10, 0x10}, {0, 0}, {0x10, 0x20}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var segs []elfimage.Segment
			var want uint64
			vaddr := uint64(0x400000)
			for i, sz := range tt.sizes {
				segs = append(segs, elfimage.NewSegment(i, vaddr, sz[1], elftest.Fill(int(sz[0]), byte(i+1))))
				vaddr += sz[1]
				want += sz[1]
			}

			var buf bytes.Buffer
			l, err := Flatten(&buf, segs)
			require.NoError(t, err)
			require.Equal(t, want, l.Size())
			require.Equal(t, int(want), buf.Len())

			out := buf.Bytes()
			var offset uint64
			for i, p := range l.Placements {
				assert.Equal(t, offset, p.Offset, "placement %d", i)
				content, err := p.Segment.Data()
				require.NoError(t, err)
				assert.Equal(t, content, out[p.Offset:p.FileEnd()], "content of placement %d", i)
				for o := p.FileEnd(); o < p.End(); o++ {
					if out[o] != 0 {
						t.Fatalf("byte %#x in padding of placement %d is %#x", o, i, out[o])
					}
				}
				offset += p.Segment.MemSize
			}
		})
	}
}

func TestFlatten_Idempotent(t *testing.T) {
	var a, b bytes.Buffer
	_, err := Flatten(&a, twoSegments())
	require.NoError(t, err)
	_, err = Flatten(&b, twoSegments())
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestFlatten_NoSegments(t *testing.T) {
	var buf bytes.Buffer
	l, err := Flatten(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), l.Size())
	assert.Equal(t, 0, buf.Len())

	_, err = ResolveEntry(l, 0x1000)
	require.Error(t, err)
	assert.Equal(t, flaterrors.KindUnresolvedEntry, flaterrors.KindOf(err))
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("device gone") }

func TestFlatten_WriteFailure(t *testing.T) {
	_, err := Flatten(brokenWriter{}, twoSegments())
	require.Error(t, err)

	var e *flaterrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, flaterrors.KindIO, e.Kind)
	assert.Equal(t, flaterrors.PhaseFlatten, e.Phase)
	assert.Equal(t, 0, e.Segment)
}

func TestFlatten_PaddingWriteFailure(t *testing.T) {
	segs := []elfimage.Segment{elfimage.NewSegment(7, 0, 0x10, nil)}
	_, err := Flatten(brokenWriter{}, segs)
	require.Error(t, err)
	assert.True(t, flaterrors.IsKind(err, flaterrors.KindIO))
}

func TestFlatten_TruncatedContent(t *testing.T) {
	seg := elfimage.NewSegment(3, 0x1000, 0x100, []byte{1, 2, 3})
	seg.FileSize = 0x10

	_, err := Flatten(&bytes.Buffer{}, []elfimage.Segment{seg})
	require.Error(t, err)

	var e *flaterrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, flaterrors.KindMalformedImage, e.Kind)
	assert.Equal(t, 3, e.Segment)
}

func TestFlatten_MemSizeSmallerThanFileSize(t *testing.T) {
	seg := elfimage.NewSegment(0, 0x1000, 0x2, []byte{1, 2, 3})
	_, err := Flatten(&bytes.Buffer{}, []elfimage.Segment{seg})
	require.Error(t, err)
	assert.Equal(t, flaterrors.KindMalformedImage, flaterrors.KindOf(err))
}

func TestPlan_Overflow(t *testing.T) {
	segs := []elfimage.Segment{
		elfimage.NewSegment(0, 0, ^uint64(0), nil),
		elfimage.NewSegment(1, 0, 2, nil),
	}
	_, err := Plan(segs)
	require.Error(t, err)
	assert.Equal(t, flaterrors.KindMalformedImage, flaterrors.KindOf(err))
}

func TestPlan_MatchesFlatten(t *testing.T) {
	planned, err := Plan(twoSegments())
	require.NoError(t, err)

	written, err := Flatten(&bytes.Buffer{}, twoSegments())
	require.NoError(t, err)

	assert.Equal(t, written.Size(), planned.Size())
	for i := range planned.Placements {
		assert.Equal(t, written.Placements[i].Offset, planned.Placements[i].Offset)
	}
}

func TestResolveEntry(t *testing.T) {
	l, err := Plan(twoSegments())
	require.NoError(t, err)

	tests := []struct {
		name      string
		entry     uint64
		offset    uint64
		placement int
		wantErr   bool
	}{
		{"start of first segment", 0x1000, 0x0, 0, false},
		{"inside first", 0x1010, 0x10, 0, false},
		{"inside bss of first", 0x12f0, 0x2f0, 0, false},
		{"start of second", 0x1300, 0x300, 1, false},
		{"last byte of second", 0x134f, 0x34f, 1, false},
		{"just past the end", 0x1350, 0, 0, true},
		{"below everything", 0xfff, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ResolveEntry(l, tt.entry)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, flaterrors.KindUnresolvedEntry, flaterrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.offset, target.Offset)
			assert.Equal(t, tt.placement, target.Placement)
			assert.Equal(t, tt.entry, target.EntryVAddr)
		})
	}
}

func TestResolveEntry_Unresolved(t *testing.T) {
	l, err := Plan([]elfimage.Segment{elfimage.NewSegment(0, 0x2000, 0x100, nil)})
	require.NoError(t, err)

	_, err = ResolveEntry(l, 0x5000)
	require.Error(t, err)

	var e *flaterrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, flaterrors.KindUnresolvedEntry, e.Kind)
	assert.Equal(t, uint64(0x5000), e.Value)
}

func TestResolveEntry_OverlapTakesFirst(t *testing.T) {
	segs := []elfimage.Segment{
		elfimage.NewSegment(0, 0x2000, 0x100, nil),
		elfimage.NewSegment(1, 0x1000, 0x2000, nil),
	}
	l, err := Plan(segs)
	require.NoError(t, err)

	target, err := ResolveEntry(l, 0x2010)
	require.NoError(t, err)
	assert.Equal(t, 0, target.TableIndex)
	assert.Equal(t, uint64(0x10), target.Offset)
}

func TestResolveEntry_NonZeroFlatOffset(t *testing.T) {
	segs := []elfimage.Segment{
		elfimage.NewSegment(0, 0x8000, 0x1000, nil),
		elfimage.NewSegment(1, 0x400000, 0x200, []byte{0xcc}),
	}
	l, err := Plan(segs)
	require.NoError(t, err)

	target, err := ResolveEntry(l, 0x400010)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1010), target.Offset)
	assert.Equal(t, 1, target.TableIndex)
}

func TestValidateContiguous(t *testing.T) {
	tests := []struct {
		name    string
		segs    []elfimage.Segment
		wantSeg int
	}{
		{"packed", twoSegments(), -1},
		{"empty", nil, -1},
		{
			"gap",
			[]elfimage.Segment{
				elfimage.NewSegment(0, 0x1000, 0x100, nil),
				elfimage.NewSegment(1, 0x2000, 0x100, nil),
			},
			1,
		},
		{
			"descending",
			[]elfimage.Segment{
				elfimage.NewSegment(0, 0x2000, 0x100, nil),
				elfimage.NewSegment(1, 0x1f00, 0x100, nil),
			},
			1,
		},
		{
			"zero sized segment skipped",
			[]elfimage.Segment{
				elfimage.NewSegment(0, 0x1000, 0x100, nil),
				elfimage.NewSegment(1, 0x9000, 0, nil),
				elfimage.NewSegment(2, 0x1100, 0x100, nil),
			},
			-1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContiguous(tt.segs)
			if tt.wantSeg < 0 {
				require.NoError(t, err)
				return
			}
			var e *flaterrors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, flaterrors.KindLayoutMismatch, e.Kind)
			assert.Equal(t, tt.wantSeg, e.Segment)
		})
	}
}

func TestFindOverlaps(t *testing.T) {
	segs := []elfimage.Segment{
		elfimage.NewSegment(0, 0x1000, 0x200, nil),
		elfimage.NewSegment(1, 0x1100, 0x200, nil),
		elfimage.NewSegment(2, 0x1200, 0x100, nil),
		elfimage.NewSegment(3, 0x1100, 0, nil),
	}
	got := FindOverlaps(segs)
	assert.Equal(t, []Overlap{{First: 0, Second: 1}, {First: 1, Second: 2}}, got)
	assert.Empty(t, FindOverlaps(twoSegments()))
}

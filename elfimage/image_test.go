package elfimage

import (
	"debug/elf"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/flatimg/errors"
	"github.com/wippyai/flatimg/internal/elftest"
)

func TestParse_ClassesAndByteOrders(t *testing.T) {
	tests := []struct {
		name  string
		class elf.Class
		data  elf.Data
		order binary.ByteOrder
	}{
		{"elf64 little endian", elf.ELFCLASS64, elf.ELFDATA2LSB, binary.LittleEndian},
		{"elf64 big endian", elf.ELFCLASS64, elf.ELFDATA2MSB, binary.BigEndian},
		{"elf32 little endian", elf.ELFCLASS32, elf.ELFDATA2LSB, binary.LittleEndian},
		{"elf32 big endian", elf.ELFCLASS32, elf.ELFDATA2MSB, binary.BigEndian},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := elftest.Fill(0x20, 1)
			raw := elftest.File{
				Class: tt.class,
				Data:  tt.data,
				Entry: 0x1004,
				Progs: []elftest.Prog{
					elftest.Load(0x1000, text, 0x40),
				},
			}.Bytes()

			img, err := Parse(raw)
			require.NoError(t, err)

			assert.Equal(t, tt.class, img.Class)
			assert.Equal(t, tt.order, img.ByteOrder)
			assert.Equal(t, uint64(0x1004), img.Entry)
			require.Len(t, img.Segments, 1)

			seg := img.Segments[0]
			assert.True(t, seg.Loadable())
			assert.Equal(t, uint64(0x1000), seg.VAddr)
			assert.Equal(t, uint64(0x20), seg.FileSize)
			assert.Equal(t, uint64(0x40), seg.MemSize)
			assert.Equal(t, uint64(0x20), seg.BSSSize())

			got, err := seg.Data()
			require.NoError(t, err)
			assert.Equal(t, text, got)
		})
	}
}

func TestParse_KeepsTableOrderAndNonLoadable(t *testing.T) {
	raw := elftest.File{
		Entry: 0x2000,
		Progs: []elftest.Prog{
			elftest.Load(0x3000, []byte{1}, 1),
			{Type: elf.PT_NOTE, Data: []byte{9, 9}, MemSize: 2},
			elftest.Load(0x2000, []byte{2}, 1),
		},
	}.Bytes()

	img, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, img.Segments, 3)

	assert.Equal(t, 0, img.Segments[0].Index)
	assert.Equal(t, uint64(0x3000), img.Segments[0].VAddr)
	assert.False(t, img.Segments[1].Loadable())
	assert.Equal(t, 2, img.Segments[2].Index)
	assert.Equal(t, uint64(0x2000), img.Segments[2].VAddr)
}

func TestParse_NotELF(t *testing.T) {
	_, err := Parse([]byte("definitely not an executable"))
	require.Error(t, err)
	assert.Equal(t, errors.KindMalformedImage, errors.KindOf(err))
}

func TestParse_MemSizeSmallerThanFileSize(t *testing.T) {
	raw := elftest.File{
		Progs: []elftest.Prog{
			elftest.Load(0x1000, elftest.Fill(0x10, 3), 0x20),
			elftest.Load(0x1020, elftest.Fill(0x10, 3), 0x8),
		},
	}.Bytes()

	_, err := Parse(raw)
	require.Error(t, err)

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindMalformedImage, e.Kind)
	assert.Equal(t, 1, e.Segment)
}

func TestSegment_Contains(t *testing.T) {
	seg := NewSegment(0, 0x1000, 0x300, make([]byte, 0x200))

	tests := []struct {
		addr uint64
		want bool
	}{
		{0x0fff, false},
		{0x1000, true},
		{0x1010, true},
		{0x12ff, true},
		{0x1300, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, seg.Contains(tt.addr), "addr %#x", tt.addr)
	}

	empty := NewSegment(1, 0x1000, 0, nil)
	assert.False(t, empty.Contains(0x1000))

	top := NewSegment(2, ^uint64(0)-0xf, 0x10, nil)
	assert.True(t, top.Contains(^uint64(0)))
	_, ok := top.End()
	assert.False(t, ok, "end of a segment reaching 2^64 does not fit")

	_, ok = seg.End()
	assert.True(t, ok)
}

func TestSegment_OpenReadsFileSizeOnly(t *testing.T) {
	seg := NewSegment(0, 0, 0x10, []byte{1, 2, 3, 4})
	seg.FileSize = 2

	got, err := io.ReadAll(seg.Open())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got)

	none := Segment{MemSize: 8}
	got, err = io.ReadAll(none.Open())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSegment_DataTruncated(t *testing.T) {
	seg := NewSegment(5, 0, 0x10, []byte{1, 2, 3})
	seg.FileSize = 8

	_, err := seg.Data()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindMalformedImage))
}

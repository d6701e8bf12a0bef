// Package wasmmod encodes the memory-only WebAssembly module the boot
// simulator instantiates.
package wasmmod

import (
	"bytes"
)

const (
	sectionMemory = 0x05
	sectionExport = 0x07
	externMemory  = 0x02
	limitsMinOnly = 0x00
)

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Writer provides buffered writing utilities for WASM binary encoding.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteU32 writes an unsigned LEB128 encoded uint32.
func (w *Writer) WriteU32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteName writes a UTF-8 encoded name (length-prefixed).
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// Section writes a section with the given id whose body is produced by fn.
func (w *Writer) Section(id byte, fn func(*Writer)) {
	body := NewWriter()
	fn(body)
	w.Byte(id)
	w.WriteU32(uint32(body.buf.Len()))
	w.buf.Write(body.Bytes())
}

// MemoryModule returns a module that defines one memory of minPages pages
// and exports it under name.
func MemoryModule(name string, minPages uint32) []byte {
	w := NewWriter()
	w.buf.Write(header)

	w.Section(sectionMemory, func(s *Writer) {
		s.WriteU32(1)
		s.Byte(limitsMinOnly)
		s.WriteU32(minPages)
	})

	w.Section(sectionExport, func(s *Writer) {
		s.WriteU32(1)
		s.WriteName(name)
		s.Byte(externMemory)
		s.WriteU32(0)
	})

	return w.Bytes()
}

// Package stream provides the append-only output stream used by the
// flattening engine.
package stream

import (
	"io"
)

const zeroChunk = 64 << 10

var zeros [zeroChunk]byte

// Writer counts bytes written to an underlying io.Writer and latches the
// first write error. Once an error is latched every later call fails with it.
type Writer struct {
	w   io.Writer
	err error
	n   uint64
}

// NewWriter creates a new Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Len returns the number of bytes written.
func (w *Writer) Len() uint64 {
	return w.n
}

// Err returns the latched write error, if any.
func (w *Writer) Err() error {
	return w.err
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(p)
	w.n += uint64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.err = err
	}
	return n, err
}

// Zero writes n zero bytes in bounded chunks.
func (w *Writer) Zero(n uint64) error {
	for n > 0 {
		chunk := uint64(zeroChunk)
		if n < chunk {
			chunk = n
		}
		if _, err := w.Write(zeros[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// CopyN copies exactly n bytes from r. It returns the number of bytes
// copied; a short copy with a nil Err means r ran out of data.
func (w *Writer) CopyN(r io.Reader, n uint64) (uint64, error) {
	var copied uint64
	for n > 0 {
		step := n
		if step > 1<<62 {
			step = 1 << 62
		}
		c, err := io.CopyN(w, r, int64(step))
		copied += uint64(c)
		if err != nil {
			return copied, err
		}
		n -= step
	}
	return copied, nil
}

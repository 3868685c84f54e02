// Package window implements the power-of-two circular sliding dictionary
// shared by the RAR4 and RAR5 LZSS decoders.
package window

import "errors"

// ErrZeroDistance is returned by CopyMatch when the distance is zero.
var ErrZeroDistance = errors.New("window: zero back-reference distance")

// ErrDistanceTooLarge is returned by CopyMatch when the distance reaches
// further back than any byte written so far.
var ErrDistanceTooLarge = errors.New("window: back-reference exceeds total written bytes")

// Window is a circular dictionary of size 2^k bytes.
type Window struct {
	buf          []byte
	mask         uint32
	pos          uint32
	totalWritten uint64
}

// New allocates a window of size 1<<log2Size bytes.
func New(log2Size uint) *Window {
	size := uint32(1) << log2Size
	return &Window{
		buf:  make([]byte, size),
		mask: size - 1,
	}
}

// Reset clears stream state but keeps the underlying allocation.
func (w *Window) Reset() {
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.pos = 0
	w.totalWritten = 0
}

// Size returns the window's byte capacity.
func (w *Window) Size() int { return len(w.buf) }

// Pos returns the current write cursor, always equal to TotalWritten() mod Size().
func (w *Window) Pos() uint32 { return w.pos }

// TotalWritten returns the monotone count of bytes written into the window.
func (w *Window) TotalWritten() uint64 { return w.totalWritten }

// WriteLiteral stores a single byte at the write cursor and advances it.
func (w *Window) WriteLiteral(b byte) {
	w.buf[w.pos] = b
	w.pos = (w.pos + 1) & w.mask
	w.totalWritten++
}

// CopyMatch reproduces a back-reference of the given distance and length.
func (w *Window) CopyMatch(distance, length uint32) error {
	if distance == 0 {
		return ErrZeroDistance
	}
	if uint64(distance) > w.totalWritten {
		return ErrDistanceTooLarge
	}

	if distance == 1 {
		b := w.buf[(w.pos-1)&w.mask]
		for i := uint32(0); i < length; i++ {
			w.buf[w.pos] = b
			w.pos = (w.pos + 1) & w.mask
		}
		w.totalWritten += uint64(length)
		return nil
	}

	srcStart := (w.pos - distance) & w.mask

	// Fast path: neither source nor destination range wraps the buffer,
	// and the ranges don't overlap (distance >= length) -> plain bulk copy.
	if srcStart+length <= uint32(len(w.buf)) && w.pos+length <= uint32(len(w.buf)) && distance >= length {
		copy(w.buf[w.pos:w.pos+length], w.buf[srcStart:srcStart+length])
		w.pos = (w.pos + length) & w.mask
		w.totalWritten += uint64(length)
		return nil
	}

	// Fast-ish path: non-wrapping but overlapping, with enough distance to
	// copy in strides of `distance` at a time.
	if srcStart+length <= uint32(len(w.buf)) && w.pos+length <= uint32(len(w.buf)) && distance >= 8 {
		remaining := length
		src := srcStart
		dst := w.pos
		for remaining > 0 {
			n := distance
			if n > remaining {
				n = remaining
			}
			copy(w.buf[dst:dst+n], w.buf[src:src+n])
			src += n
			dst += n
			remaining -= n
		}
		w.pos = (w.pos + length) & w.mask
		w.totalWritten += uint64(length)
		return nil
	}

	// Slow path: byte-by-byte, safe under wraparound and any overlap.
	src := srcStart
	dst := w.pos
	for i := uint32(0); i < length; i++ {
		w.buf[dst] = w.buf[src]
		src = (src + 1) & w.mask
		dst = (dst + 1) & w.mask
	}
	w.pos = dst
	w.totalWritten += uint64(length)
	return nil
}

// CopyRange copies length bytes starting at absolute stream position start
// (taken modulo the window size) into dst. Used by filters that need to
// snapshot the window without mutating it.
func (w *Window) CopyRange(start uint64, length uint32, dst []byte) {
	p := uint32(start & uint64(w.mask))
	for i := uint32(0); i < length; i++ {
		dst[i] = w.buf[p]
		p = (p + 1) & w.mask
	}
}

// Package filterqueue implements the deferred, offset-ordered filter
// execution shared by the RAR4 and RAR5 decoders: filters read from the
// sliding window but must never write back into it, since downstream
// back-references still expect unfiltered dictionary bytes.
package filterqueue

// Window is the minimal view of the sliding window the scheduler needs:
// enough history to copy out a filter's input block without mutating it.
type Window interface {
	TotalWritten() uint64
	CopyRange(start uint64, length uint32, dst []byte)
}

// Filter is a prepared, not-yet-executed filter descriptor. Apply runs the
// kind-specific transform over block (a copy of the window bytes covering
// [BlockStart, BlockStart+BlockLength)) and returns the replacement bytes.
// A false second return means identification/execution failed; the queue
// falls through to emitting the unfiltered block unchanged.
type Filter interface {
	BlockStart() uint64
	BlockLength() uint32
	Apply(block []byte) ([]byte, bool)
}

// Queue holds filters in stream (non-decreasing BlockStart) order and
// flushes window bytes to the output buffer as filters become ready.
type Queue struct {
	pending []Filter
	flushed uint64
}

// Enqueue appends a newly parsed filter. Callers must enqueue in
// increasing BlockStart order, matching stream order.
func (q *Queue) Enqueue(f Filter) {
	q.pending = append(q.pending, f)
}

// Pending reports whether any filter is still queued.
func (q *Queue) Pending() bool { return len(q.pending) > 0 }

// Drain executes every filter whose input block has fully arrived in the
// window, flushing the unfiltered gap before each one, and appends all
// produced bytes to *out in order.
func (q *Queue) Drain(w Window, out *[]byte) {
	for len(q.pending) > 0 {
		f := q.pending[0]
		start := f.BlockStart()
		length := uint64(f.BlockLength())
		if w.TotalWritten() < start+length {
			return
		}

		q.flushRange(w, out, start)

		block := make([]byte, length)
		w.CopyRange(start, f.BlockLength(), block)
		if transformed, ok := f.Apply(block); ok {
			*out = append(*out, transformed...)
		} else {
			*out = append(*out, block...)
		}
		q.flushed = start + length
		q.pending = q.pending[1:]
	}
}

// Finish flushes any remaining unfiltered window bytes once the stream is
// fully decoded (typically after Drain could make no further progress
// because the trailing filter's block never fully arrived, or there are
// no filters at all).
func (q *Queue) Finish(w Window, out *[]byte) {
	q.flushRange(w, out, w.TotalWritten())
}

func (q *Queue) flushRange(w Window, out *[]byte, upTo uint64) {
	if upTo <= q.flushed {
		return
	}
	n := upTo - q.flushed
	buf := make([]byte, n)
	w.CopyRange(q.flushed, uint32(n), buf)
	*out = append(*out, buf...)
	q.flushed = upTo
}

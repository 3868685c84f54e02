// Package huffman builds and decodes canonical Huffman tables from a
// code-length vector, the entropy coding primitive shared by the RAR4
// pre-code/length vectors and the RAR5 per-block tables.
package huffman

import (
	"errors"

	"github.com/javi11/rardecode/internal/bitio"
)

// ErrNoCode is returned when decoding against an empty table, or when no
// code matches the leading bits of the stream.
var ErrNoCode = errors.New("huffman: no matching code")

const maxCodeLen = 15

// quickEntry is one slot of the fast dispatch table: symbol plus the bit
// length actually consumed to reach it (0 length = miss, fall to slow path).
type quickEntry struct {
	symbol uint16
	length uint8
}

// Table is a canonical Huffman decode table built from a length vector.
type Table struct {
	quickBits uint32
	quick     []quickEntry

	// slow path: codes grouped by length for lengths > quickBits.
	firstCode   [maxCodeLen + 1]uint32
	firstSymbol [maxCodeLen + 1]int
	counts      [maxCodeLen + 1]int
	symbols     []uint16 // permutation ordered by (length, original index)
}

// New builds a canonical Huffman table from lengths (0 means "unused").
// quickBits selects the fast dispatch table width (10 for main tables,
// 6-7 for RAR5/RAR4 sub-tables).
func New(lengths []uint8, quickBits uint32) *Table {
	t := &Table{quickBits: quickBits}

	var counts [maxCodeLen + 1]int
	for _, l := range lengths {
		if l > 0 {
			counts[l]++
		}
	}

	var firstCode [maxCodeLen + 1]uint32
	code := uint32(0)
	for l := 1; l <= maxCodeLen; l++ {
		firstCode[l] = code
		code = (code + uint32(counts[l])) << 1
	}

	// Build the (length, original-index) ordered permutation and assign
	// codes in that order, which coincides with the canonical assignment.
	t.symbols = make([]uint16, len(lengths))
	firstSymbol := [maxCodeLen + 1]int{}
	cursor := 0
	for l := 1; l <= maxCodeLen; l++ {
		firstSymbol[l] = cursor
		cursor += counts[l]
	}
	nextSlot := firstSymbol
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		t.symbols[nextSlot[l]] = uint16(sym)
		nextSlot[l]++
	}

	t.counts = counts
	t.firstCode = firstCode
	t.firstSymbol = firstSymbol

	if quickBits > 0 {
		t.quick = make([]quickEntry, 1<<quickBits)
		nextCode := firstCode
		idx := firstSymbol
		for l := 1; l <= maxCodeLen; l++ {
			n := counts[l]
			for i := 0; i < n; i++ {
				c := nextCode[l]
				nextCode[l]++
				sym := t.symbols[idx[l]]
				idx[l]++
				if uint32(l) <= quickBits {
					fillQuick(t.quick, c, uint32(l), quickBits, sym)
				}
			}
		}
	}

	return t
}

func fillQuick(quick []quickEntry, code uint32, length, quickBits uint32, symbol uint16) {
	// code occupies the top `length` bits of a quickBits-wide index; fill
	// every entry whose leading `length` bits equal code.
	shift := quickBits - length
	base := code << shift
	count := uint32(1) << shift
	for i := uint32(0); i < count; i++ {
		quick[base+i] = quickEntry{symbol: symbol, length: uint8(length)}
	}
}

// Empty reports whether the table has no assigned codes.
func (t *Table) Empty() bool {
	for _, c := range t.counts {
		if c > 0 {
			return false
		}
	}
	return true
}

// Decode reads the next symbol from br. Peeks up to 15 bits.
func (t *Table) Decode(br *bitio.Reader) (uint16, error) {
	if t.Empty() {
		return 0, ErrNoCode
	}

	if t.quickBits > 0 {
		idx := br.PeekBits(t.quickBits)
		e := t.quick[idx]
		if e.length > 0 {
			br.AdvanceBits(uint32(e.length))
			return e.symbol, nil
		}
	}

	// Slow path: walk lengths beyond quickBits (or all lengths, if no
	// quick table was built).
	peek := br.PeekBits(maxCodeLen)
	code := uint32(0)
	start := uint32(1)
	if t.quickBits > 0 {
		start = t.quickBits + 1
	}
	// Recompute code for bits already implicitly consumed by the shared
	// peek window: code is simply the top `l` bits of peek.
	for l := start; l <= maxCodeLen; l++ {
		code = peek >> (maxCodeLen - l)
		n := t.counts[l]
		if n == 0 {
			continue
		}
		first := t.firstCode[l]
		if code >= first && code-first < uint32(n) {
			symIdx := t.firstSymbol[l] + int(code-first)
			sym := t.symbols[symIdx]
			br.AdvanceBits(l)
			return sym, nil
		}
	}
	return 0, ErrNoCode
}

package rar4

import (
	"testing"

	"github.com/javi11/rardecode/internal/bitio"
)

func packNibbles(nibbles []uint8) []byte {
	out := make([]byte, 0)
	var cur byte
	half := false
	for _, n := range nibbles {
		if !half {
			cur = n << 4
			half = true
		} else {
			cur |= n
			out = append(out, cur)
			half = false
		}
	}
	if half {
		out = append(out, cur)
	}
	out = append(out, 0, 0, 0, 0)
	return out
}

func TestReadPrecodeDirectValues(t *testing.T) {
	nibbles := make([]uint8, precodeSize)
	for i := range nibbles {
		nibbles[i] = uint8(i % 15) // avoid the 0xF escape
	}
	data := packNibbles(nibbles)
	br := bitio.NewReader(data)
	lengths, err := readPrecode(br)
	if err != nil {
		t.Fatal(err)
	}
	for i, l := range lengths {
		if l != nibbles[i] {
			t.Fatalf("entry %d: got %d want %d", i, l, nibbles[i])
		}
	}
}

func TestReadPrecodeEscapeZeroRun(t *testing.T) {
	// First entry: escape with count=0 -> 2 zero entries. Remaining 18
	// entries: direct value 1.
	nibbles := []uint8{0xF, 0x0}
	for i := 0; i < 18; i++ {
		nibbles = append(nibbles, 1)
	}
	data := packNibbles(nibbles)
	br := bitio.NewReader(data)
	lengths, err := readPrecode(br)
	if err != nil {
		t.Fatal(err)
	}
	if lengths[0] != 0 || lengths[1] != 0 {
		t.Fatalf("expected two zero entries from escape, got %v", lengths[:2])
	}
	for i := 2; i < precodeSize; i++ {
		if lengths[i] != 1 {
			t.Fatalf("entry %d: got %d want 1", i, lengths[i])
		}
	}
}

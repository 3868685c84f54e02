package huffman

import (
	"testing"

	"github.com/javi11/rardecode/internal/bitio"
)

func TestEmptyTableDecodeErrors(t *testing.T) {
	tbl := New([]uint8{0, 0, 0}, 7)
	if !tbl.Empty() {
		t.Fatal("expected empty table")
	}
	br := bitio.NewReader([]byte{0xFF})
	if _, err := tbl.Decode(br); err != ErrNoCode {
		t.Fatalf("expected ErrNoCode, got %v", err)
	}
}

func TestCanonicalAssignmentAndRoundTrip(t *testing.T) {
	// classic example: symbols A(len2) B(len1) C(len3) D(len3)
	// lengths indexed by symbol: B=1,A=2,C=3,D=3
	lengths := []uint8{2, 1, 3, 3} // symbol 0=A len2, 1=B len1, 2=C len3, 3=D len3
	tbl := New(lengths, 7)

	// canonical codes: len1 count=1 -> code 0 for B
	// len2 count=1 -> first code = (0+1)<<1 = 2 (0b10) for A
	// len3 count=2 -> first code = (2+1)<<1 = 6 (0b110) for C, 0b111 for D
	cases := []struct {
		bits   string
		nbits  uint32
		expect uint16
	}{
		{"0", 1, 1},       // B
		{"10", 2, 0},      // A
		{"110", 3, 2},     // C
		{"111", 3, 3},     // D
	}
	for _, c := range cases {
		data := packBits(c.bits)
		br := bitio.NewReader(data)
		sym, err := tbl.Decode(br)
		if err != nil {
			t.Fatalf("bits=%s: %v", c.bits, err)
		}
		if sym != c.expect {
			t.Fatalf("bits=%s: expected symbol %d, got %d", c.bits, c.expect, sym)
		}
		if br.BitPosition() != uint64(c.nbits) {
			t.Fatalf("bits=%s: expected consuming %d bits, consumed %d", c.bits, c.nbits, br.BitPosition())
		}
	}
}

func packBits(bits string) []byte {
	out := make([]byte, 0, 2)
	var cur byte
	var n int
	for _, b := range bits {
		cur <<= 1
		if b == '1' {
			cur |= 1
		}
		n++
		if n == 8 {
			out = append(out, cur)
			cur = 0
			n = 0
		}
	}
	if n > 0 {
		cur <<= uint(8 - n)
		out = append(out, cur)
	}
	out = append(out, 0, 0, 0) // padding so reader never starves mid-code
	return out
}

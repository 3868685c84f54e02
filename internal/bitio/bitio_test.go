package bitio

import "testing"

func TestReadBits(t *testing.T) {
	data := []byte{0b10110100, 0b11001010}
	r := NewReader(data)

	if v, err := r.ReadBits(4); err != nil || v != 0b1011 {
		t.Fatalf("got %b, %v", v, err)
	}
	if v, err := r.ReadBits(4); err != nil || v != 0b0100 {
		t.Fatalf("got %b, %v", v, err)
	}
	if v, err := r.ReadBits(8); err != nil || v != 0b11001010 {
		t.Fatalf("got %b, %v", v, err)
	}
}

func TestPeekBits(t *testing.T) {
	r := NewReader([]byte{0b10110100})
	if v := r.PeekBits(4); v != 0b1011 {
		t.Fatalf("got %b", v)
	}
	if v := r.PeekBits(8); v != 0b10110100 {
		t.Fatalf("got %b", v)
	}
}

func TestEOF(t *testing.T) {
	r := NewReader([]byte{0xFF})
	if r.IsEOF() {
		t.Fatal("expected not eof")
	}
	if _, err := r.ReadBits(8); err != nil {
		t.Fatal(err)
	}
	if !r.IsEOF() {
		t.Fatal("expected eof")
	}
}

func TestReadPastEOFErrors(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadBits(8); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadBits(1); err != ErrUnexpectedEOF {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestAlignToByte(t *testing.T) {
	r := NewReader([]byte{0xFF, 0x00})
	if _, err := r.ReadBits(3); err != nil {
		t.Fatal(err)
	}
	r.AlignToByte()
	if r.BitPosition() != 8 {
		t.Fatalf("expected bit position 8, got %d", r.BitPosition())
	}
}

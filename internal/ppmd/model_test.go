package ppmd

import (
	"bytes"
	"testing"
)

func TestInitReadsHeaderAndEscChar(t *testing.T) {
	// header byte: reset(0x20) | custom_esc(0x40) | order=4 (low5 bits value 3)
	data := []byte{0x20 | 0x40 | 0x03, 0x05, 0, 0, 0, 0}
	m := NewModel()
	if err := m.Init(bytes.NewReader(data), 1); err != nil {
		t.Fatal(err)
	}
	if m.EscChar() != 0x05 {
		t.Fatalf("expected custom esc char 0x05, got %#x", m.EscChar())
	}
	if m.maxOrderN != 4 {
		t.Fatalf("expected order 4, got %d", m.maxOrderN)
	}
}

func TestInitDefaultEscChar(t *testing.T) {
	data := []byte{0x20 | 0x02, 0, 0, 0, 0}
	m := NewModel()
	if err := m.Init(bytes.NewReader(data), 1); err != nil {
		t.Fatal(err)
	}
	if m.EscChar() != 2 {
		t.Fatalf("expected default esc char 2, got %#x", m.EscChar())
	}
}

func TestRestartModelBuildsRootContext(t *testing.T) {
	data := []byte{0x20 | 0x01, 0, 0, 0, 0}
	m := NewModel()
	if err := m.Init(bytes.NewReader(data), 1); err != nil {
		t.Fatal(err)
	}
	root := m.alloc.ctxAt(m.minContext)
	if root.numStats() != 256 {
		t.Fatalf("expected root with 256 states, got %d", root.numStats())
	}
	for i := 0; i < 256; i++ {
		st := root.stateAt(i)
		if st.symbol() != byte(i) || st.freq() != 1 {
			t.Fatalf("root state %d malformed: sym=%d freq=%d", i, st.symbol(), st.freq())
		}
	}
}

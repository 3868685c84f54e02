package ppmd

import "testing"

func TestAllocatorResizeReusesSameSizeBuffer(t *testing.T) {
	a := newAllocator()
	a.resize(1)
	buf1 := a.heap
	a.resize(1)
	if &a.heap[0] != &buf1[0] {
		t.Fatal("expected buffer reuse on same-size resize")
	}
}

func TestAllocUnitsDoesNotOverlapTextArea(t *testing.T) {
	a := newAllocator()
	a.resize(1)
	off := a.allocUnits(1)
	if off < a.unitsStart {
		t.Fatalf("allocation %d crosses into text area (< %d)", off, a.unitsStart)
	}
}

func TestFreeAndReallocRecyclesNode(t *testing.T) {
	a := newAllocator()
	a.resize(1)
	off := a.allocUnits(1)
	a.freeUnits(off, 1)
	off2 := a.allocUnits(1)
	if off2 != off {
		t.Fatalf("expected recycled offset %d, got %d", off, off2)
	}
}

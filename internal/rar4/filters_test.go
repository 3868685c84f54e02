package rar4

import "testing"

func TestIdentifyFilterRejectsBadChecksum(t *testing.T) {
	code := make([]byte, 29)
	if k := IdentifyFilter(code); k != FilterUnknown {
		t.Fatalf("expected FilterUnknown for all-zero bytecode, got %v", k)
	}
}

func TestIdentifyFilterUnknownLengthNeverPanics(t *testing.T) {
	code := []byte{0x00}
	if k := IdentifyFilter(code); k != FilterUnknown {
		t.Fatalf("expected FilterUnknown, got %v", k)
	}
	if k := IdentifyFilter(nil); k != FilterUnknown {
		t.Fatalf("expected FilterUnknown for nil, got %v", k)
	}
}

func TestApplyDeltaSingleChannel(t *testing.T) {
	// Matches the reference delta filter's wrapping-subtraction semantics:
	// source [5,3,2,1] single channel -> running prev-=src predictor.
	out, ok := applyDelta([]byte{5, 3, 2, 1}, 1)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	want := []byte{251, 248, 246, 245}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d", i, out[i], want[i])
		}
	}
}

func TestApplyDeltaZeroChannelsFallsThrough(t *testing.T) {
	if _, ok := applyDelta([]byte{5, 3, 2, 1}, 0); ok {
		t.Fatalf("expected ok=false for channels=0, matching filter_delta's early-out")
	}
}

func TestApplyE8RewritesCallTarget(t *testing.T) {
	block := []byte{0xE8, 0x00, 0x00, 0x00, 0x00, 0x90}
	out, ok := applyE8E9(block, 0, false)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if len(out) != len(block) {
		t.Fatalf("length changed: got %d want %d", len(out), len(block))
	}
	// Absolute target 0 at file offset 0 becomes the relative target -1.
	for i, b := range []byte{0xE8, 0xFF, 0xFF, 0xFF, 0xFF, 0x90} {
		if out[i] != b {
			t.Fatalf("out = % x, want e8 ff ff ff ff 90", out)
		}
	}
}

func TestApplyE8E9TooShortFallsThrough(t *testing.T) {
	if _, ok := applyE8E9([]byte{0xE8, 0x00}, 0, false); ok {
		t.Fatalf("expected ok=false for a block shorter than 4 bytes")
	}
}

func TestApplyItaniumTooShortFallsThrough(t *testing.T) {
	if _, ok := applyItanium(make([]byte, 10), 0); ok {
		t.Fatalf("expected ok=false for a block shorter than 21 bytes")
	}
}

func TestApplyRGBPreservesBlockLength(t *testing.T) {
	// Two 3-byte pixels at width 3: the filter accepts the block and
	// returns output of the same length.
	block := []byte{10, 20, 30, 1, 2, 3}
	out, ok := applyRGB(block, 3, 0)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if len(out) != len(block) {
		t.Fatalf("length changed: got %d want %d", len(out), len(block))
	}
}

func TestApplyAudioSingleChannel(t *testing.T) {
	block := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	out, ok := applyAudio(block, 1)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if len(out) != len(block) {
		t.Fatalf("length changed: got %d want %d", len(out), len(block))
	}
}

package rardecode

import (
	"errors"
	"testing"

	"github.com/javi11/rardecode/internal/rar5"
	"github.com/javi11/rardecode/internal/window"
)

func TestNormalizeDecodeErrMapsBackReference(t *testing.T) {
	err := normalizeDecodeErr(window.ErrDistanceTooLarge)
	if !errors.Is(err, ErrInvalidBackReference) {
		t.Fatalf("expected ErrInvalidBackReference, got %v", err)
	}
}

func TestNormalizeDecodeErrMapsUnsupportedMethod(t *testing.T) {
	err := normalizeDecodeErr(rar5.ErrUnsupportedMethod)
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestNormalizeDecodeErrPassesThroughUnknown(t *testing.T) {
	sentinel := errors.New("boom")
	if got := normalizeDecodeErr(sentinel); got != sentinel {
		t.Fatalf("expected passthrough, got %v", got)
	}
}

func TestNormalizeDecodeErrNil(t *testing.T) {
	if normalizeDecodeErr(nil) != nil {
		t.Fatal("expected nil passthrough")
	}
}

package rardecode

import (
	"errors"

	"github.com/javi11/rardecode/internal/bitio"
	"github.com/javi11/rardecode/internal/huffman"
	"github.com/javi11/rardecode/internal/ppmd"
	"github.com/javi11/rardecode/internal/rar4"
	"github.com/javi11/rardecode/internal/rar5"
	"github.com/javi11/rardecode/internal/window"
)

// Decoder-level error kinds, independent of RAR4/RAR5 flavor. Each wraps
// the underlying per-package sentinel it was raised from, so callers can
// match on either the package-specific error or this common one.
var (
	ErrUnexpectedEOF      = bitio.ErrUnexpectedEOF
	ErrInvalidHuffmanCode = huffman.ErrNoCode
	ErrModelCorruption    = ppmd.ErrModelCorruption

	// ErrInvalidBackReference is raised when a match references a
	// distance of zero or beyond what has actually been written.
	ErrInvalidBackReference = errors.New("rardecode: invalid back-reference")

	// ErrUnsupportedMethod is raised when a RAR4 PPM stream fails to
	// initialize, or a RAR5 method falls outside [0,5].
	ErrUnsupportedMethod = errors.New("rardecode: unsupported method")

	// ErrIncompleteData is raised when input is exhausted before the
	// requested unpacked size has been produced.
	ErrIncompleteData = errors.New("rardecode: incomplete data")
)

// isInvalidBackReference reports whether err originates from either
// format's window-distance or back-reference sentinel.
func isInvalidBackReference(err error) bool {
	return errors.Is(err, window.ErrZeroDistance) ||
		errors.Is(err, window.ErrDistanceTooLarge) ||
		errors.Is(err, rar4.ErrInvalidBackReference) ||
		errors.Is(err, rar5.ErrInvalidBackReference)
}

func isUnsupportedMethod(err error) bool {
	return errors.Is(err, rar4.ErrUnsupportedMethod) || errors.Is(err, rar5.ErrUnsupportedMethod)
}

func isIncompleteData(err error) bool {
	return errors.Is(err, rar4.ErrIncompleteData) || errors.Is(err, rar5.ErrIncompleteData)
}

// normalizeDecodeErr maps an internal package error onto the root-level
// sentinel vocabulary described in the metadata contract, preserving the
// original error as the wrapped cause.
func normalizeDecodeErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isInvalidBackReference(err):
		return errors.Join(ErrInvalidBackReference, err)
	case isUnsupportedMethod(err):
		return errors.Join(ErrUnsupportedMethod, err)
	case isIncompleteData(err):
		return errors.Join(ErrIncompleteData, err)
	default:
		return err
	}
}

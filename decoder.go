package rardecode

import (
	"github.com/javi11/rardecode/internal/rar4"
	"github.com/javi11/rardecode/internal/rar5"
)

// Rar4Decoder decodes one RAR4 (2.9/3.x/4.x) compressed stream at a
// time. It owns its own sliding window and PPMd model state; callers
// decompressing multiple files in parallel should use one instance per
// goroutine.
type Rar4Decoder struct {
	inner *rar4.Decoder
}

// NewRar4Decoder constructs a decoder with a fresh 2 MiB window.
func NewRar4Decoder() *Rar4Decoder {
	return &Rar4Decoder{inner: rar4.New()}
}

// Reset clears stream state but keeps the window and scratch buffers.
func (d *Rar4Decoder) Reset() { d.inner.Reset() }

// Decompress decodes compressed into exactly unpackedSize bytes, or
// returns an error from the vocabulary described in errors.go.
func (d *Rar4Decoder) Decompress(compressed []byte, unpackedSize uint64) ([]byte, error) {
	out, err := d.inner.Decompress(compressed, unpackedSize)
	return out, normalizeDecodeErr(err)
}

// BytesWritten returns the number of unpacked bytes produced so far.
func (d *Rar4Decoder) BytesWritten() uint64 { return d.inner.BytesWritten() }

// Rar5Decoder decodes one RAR5 compressed stream at a time, carrying its
// own dictionary-sized sliding window.
type Rar5Decoder struct {
	inner *rar5.Decoder
}

// NewRar5Decoder constructs a decoder with a window of size
// 1<<dictSizeLog bytes; dictSizeLog must be in [17,30].
func NewRar5Decoder(dictSizeLog uint) *Rar5Decoder {
	return &Rar5Decoder{inner: rar5.New(dictSizeLog)}
}

// Reset clears stream state but keeps the window allocation.
func (d *Rar5Decoder) Reset() { d.inner.Reset() }

// Decompress decodes compressed into up to unpackedSize bytes. method 0
// means stored (copy); method 1-5 means block-decoded. isSolid indicates
// whether retables carry over from a previous file in the same archive.
func (d *Rar5Decoder) Decompress(compressed []byte, unpackedSize uint64, method int, isSolid bool) ([]byte, error) {
	out, err := d.inner.Decompress(compressed, unpackedSize, method, isSolid)
	return out, normalizeDecodeErr(err)
}

// BytesWritten returns the number of unpacked bytes produced so far.
func (d *Rar5Decoder) BytesWritten() uint64 { return d.inner.BytesWritten() }

// DecompressFile decompresses one file's worth of compressed bytes using
// the metadata contract produced by the header-parsing collaborator
// (ParseMetadata), selecting the RAR4 or RAR5 core decoder by
// meta.RARVersion.
func DecompressFile(meta FileMetadata, compressed []byte) ([]byte, error) {
	switch meta.RARVersion {
	case VersionRar5:
		d := NewRar5Decoder(meta.DictSizeLog)
		return d.Decompress(compressed, meta.UnpackedSize, int(meta.Method), meta.IsSolid)
	default:
		d := NewRar4Decoder()
		return d.Decompress(compressed, meta.UnpackedSize)
	}
}

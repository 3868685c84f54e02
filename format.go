package rardecode

import (
	"fmt"
	"io"
)

// FileMetadata bridges the header-parsing collaborator (rar3.go/rar5.go)
// and the decompression core: everything a Rar4Decoder/Rar5Decoder needs
// to decode one file's compressed range, independent of how that range
// was located on disk.
type FileMetadata struct {
	Name         string
	UnpackedSize uint64
	PackedSize   uint64
	Method       uint8
	IsSolid      bool
	Salt         []byte
	RARVersion   string
	DictSizeLog  uint
}

// ParseMetadata walks the single volume at path and returns the metadata
// contract for every file header it finds. Multi-volume stitching is the
// caller's responsibility (see discover.go / aggregate.go); this only
// covers one physical volume, matching how rar3.go/rar5.go walk headers.
func ParseMetadata(path string) ([]FileMetadata, error) {
	return ParseMetadataFS(defaultFS, path)
}

// ParseMetadataFS is ParseMetadata against an arbitrary FileSystem.
func ParseMetadataFS(fs FileSystem, path string) ([]FileMetadata, error) {
	vi, err := indexSingle(fs, path)
	if err != nil {
		return nil, err
	}
	out := make([]FileMetadata, 0, len(vi.FileBlocks))
	for _, fb := range vi.FileBlocks {
		out = append(out, fileBlockToMetadata(vi.Version, fb))
	}
	return out, nil
}

func fileBlockToMetadata(version string, fb FileBlock) FileMetadata {
	return FileMetadata{
		Name:         fb.Name,
		UnpackedSize: uint64(fb.UnpackedSize),
		PackedSize:   uint64(fb.PackedSize),
		Method:       fb.Method,
		IsSolid:      fb.IsSolid,
		Salt:         fb.Salt,
		RARVersion:   version,
		DictSizeLog:  fb.DictSizeLog,
	}
}

// ReadCompressedRange opens path and reads exactly one file's packed
// bytes, as located by a prior ParseMetadata/IndexVolumes pass
// (dataPos/packedSize from the matching FileBlock).
func ReadCompressedRange(fs FileSystem, path string, dataPos, packedSize int64) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	seeker, ok := f.(io.Seeker)
	if !ok {
		return nil, fmt.Errorf("rardecode: %s does not support seeking", path)
	}
	if _, err := seeker.Seek(dataPos, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, packedSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Package rar4 implements the RAR 2.9/3.x/4.x compressed-stream decoder:
// the Huffman preamble, the LZSS symbol dispatch loop, and the filter
// bytecode surface, falling back to the PPMd-II model for PPM-mode files.
package rar4

import (
	"github.com/javi11/rardecode/internal/bitio"
	"github.com/javi11/rardecode/internal/huffman"
)

// Symbol-space sizes for the four RAR4 tables.
const (
	mainTableSize = 299
	distTableSize = 60
	lowDistTableSize = 17
	lenTableSize  = 28

	precodeSize = 20
	totalLengthVector = mainTableSize + distTableSize + lowDistTableSize + lenTableSize // 404
)

var shortBase = [8]uint32{0, 4, 8, 16, 32, 64, 128, 192}
var shortBits = [8]uint32{2, 2, 3, 4, 5, 6, 6, 6}

var lengthBase = [28]uint32{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 10, 12, 14, 16, 20,
	24, 28, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224,
}
var lengthExtra = [28]uint32{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2,
	2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5,
}

// distBase/distExtra cover the 60-entry RAR4 distance table (dist_code in
// [0,60)); every entry holds its real base and extra-bit count.
var distBase = [60]uint32{
	0, 1, 2, 3, 4, 6, 8, 12, 16, 24, 32, 48, 64, 96, 128, 192, 256, 384, 512, 768,
	1024, 1536, 2048, 3072, 4096, 6144, 8192, 12288, 16384, 24576, 32768, 49152,
	65536, 98304, 131072, 196608, 262144, 393216, 524288, 786432, 1048576, 1572864,
	2097152, 3145728, 4194304, 6291456, 8388608, 12582912, 16777216, 25165824,
	33554432, 50331648, 67108864, 100663296, 134217728, 201326592, 268435456,
	402653184, 536870912, 805306368,
}
var distExtra = [60]uint32{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8,
	9, 9, 10, 10, 11, 11, 12, 12, 13, 13, 14, 14, 15, 15, 16, 16, 17, 17, 18, 18,
	19, 19, 20, 20, 21, 21, 22, 22, 23, 23, 24, 24, 25, 25, 26, 26, 27, 27, 28, 28,
}

// readPrecode decodes the 20-entry, 4-bit pre-code used to compress the
// main length vector, with the 0xF escape meaning "count+2 zero entries".
func readPrecode(br *bitio.Reader) ([]uint8, error) {
	lengths := make([]uint8, precodeSize)
	i := 0
	for i < precodeSize {
		v, err := br.ReadBits(4)
		if err != nil {
			return nil, err
		}
		if v == 0xF {
			count, err := br.ReadBits(4)
			if err != nil {
				return nil, err
			}
			n := int(count) + 2
			for j := 0; j < n && i < precodeSize; j++ {
				lengths[i] = 0
				i++
			}
			continue
		}
		lengths[i] = uint8(v)
		i++
	}
	return lengths, nil
}

// readLengthVector decodes the combined 404-entry length vector (main +
// distance + low-distance + length tables) using the pre-code table.
func readLengthVector(br *bitio.Reader, pre *huffman.Table) ([]uint8, error) {
	out := make([]uint8, totalLengthVector)
	i := 0
	for i < totalLengthVector {
		sym, err := pre.Decode(br)
		if err != nil {
			return nil, err
		}
		switch {
		case sym < 16:
			prev := uint8(0)
			if i > 0 {
				prev = out[i-1]
			}
			out[i] = uint8((int(prev) + int(sym)) % 16)
			i++
		case sym == 16:
			n, err := br.ReadBits(3)
			if err != nil {
				return nil, err
			}
			count := 3 + int(n)
			prev := uint8(0)
			if i > 0 {
				prev = out[i-1]
			}
			for j := 0; j < count && i < totalLengthVector; j++ {
				out[i] = prev
				i++
			}
		case sym == 17:
			n, err := br.ReadBits(7)
			if err != nil {
				return nil, err
			}
			count := 11 + int(n)
			prev := uint8(0)
			if i > 0 {
				prev = out[i-1]
			}
			for j := 0; j < count && i < totalLengthVector; j++ {
				out[i] = prev
				i++
			}
		case sym == 18:
			n, err := br.ReadBits(3)
			if err != nil {
				return nil, err
			}
			count := 3 + int(n)
			for j := 0; j < count && i < totalLengthVector; j++ {
				out[i] = 0
				i++
			}
		case sym == 19:
			n, err := br.ReadBits(7)
			if err != nil {
				return nil, err
			}
			count := 11 + int(n)
			for j := 0; j < count && i < totalLengthVector; j++ {
				out[i] = 0
				i++
			}
		}
	}
	return out, nil
}

// tableSet holds the four decode tables built from one length vector.
type tableSet struct {
	main    *huffman.Table
	dist    *huffman.Table
	lowDist *huffman.Table
	length  *huffman.Table
}

func buildTables(br *bitio.Reader) (*tableSet, error) {
	preLens, err := readPrecode(br)
	if err != nil {
		return nil, err
	}
	pre := huffman.New(preLens, 7)

	lv, err := readLengthVector(br, pre)
	if err != nil {
		return nil, err
	}

	ts := &tableSet{
		main:    huffman.New(lv[0:mainTableSize], 10),
		dist:    huffman.New(lv[mainTableSize:mainTableSize+distTableSize], 7),
		lowDist: huffman.New(lv[mainTableSize+distTableSize:mainTableSize+distTableSize+lowDistTableSize], 6),
		length:  huffman.New(lv[mainTableSize+distTableSize+lowDistTableSize:], 6),
	}
	return ts, nil
}

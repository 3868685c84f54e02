// Package rar5 implements the RAR5 block decoder: per-block Huffman
// retables, the main/distance/align/length symbol dispatch loop, the
// rep-offset stack, and the four RAR5 filters.
package rar5

import (
	"errors"

	"github.com/javi11/rardecode/internal/bitio"
	"github.com/javi11/rardecode/internal/huffman"
)

// ErrBadBlockChecksum is returned when a block header's XOR checksum byte
// doesn't validate.
var ErrBadBlockChecksum = errors.New("rar5: bad block header checksum")

const (
	numReps        = 4
	lenTableSize   = 44
	mainTableSize  = 306
	distTableSize  = 64
	alignTableSize = 16
	numAlignBits   = 4
	levelTableSize = 20

	quickBitsMain  = 10
	quickBitsDist  = 7
	quickBitsLen   = 7
	quickBitsAlign = 6
	quickBitsLevel = 6

	combinedLenVector = mainTableSize + distTableSize + alignTableSize + lenTableSize // 430
)

// BlockHeader is one byte-aligned RAR5 block header.
type BlockHeader struct {
	IsLastBlock bool
	NewTables   bool
	BitSize     uint32 // valid bits in the block's final byte
	ByteSize    uint32 // total byte size of the block's packed-bit region
}

// ReadBlockHeader parses the flags/checksum/size fields at the current
// (byte-aligned) position of br.
func ReadBlockHeader(br *bitio.Reader) (BlockHeader, error) {
	flagsV, err := br.ReadBits(8)
	if err != nil {
		return BlockHeader{}, err
	}
	flags := byte(flagsV)
	checkV, err := br.ReadBits(8)
	if err != nil {
		return BlockHeader{}, err
	}
	check := byte(checkV)

	numSizeBytes := int((flags >> 3) & 3)
	running := flags ^ check
	var size uint32
	for i := 0; i < numSizeBytes+1; i++ {
		bV, err := br.ReadBits(8)
		if err != nil {
			return BlockHeader{}, err
		}
		b := byte(bV)
		running ^= b
		size |= uint32(b) << (8 * uint(i))
	}
	if running != 0x5A {
		return BlockHeader{}, ErrBadBlockChecksum
	}

	return BlockHeader{
		IsLastBlock: flags&0x40 != 0,
		NewTables:   flags&0x80 != 0,
		BitSize:     uint32(flags&7) + 1,
		ByteSize:    size,
	}, nil
}

// TableSet holds the four decode tables rebuilt from one block's level
// table, plus whether align codes carry real data (all-default 4-bit
// align tables are treated as raw-bits per spec).
type TableSet struct {
	Main     *huffman.Table
	Dist     *huffman.Table
	Align    *huffman.Table
	Length   *huffman.Table
	HasAlign bool
}

func readLevelTable(br *bitio.Reader) ([]uint8, error) {
	lengths := make([]uint8, levelTableSize)
	for i := 0; i < levelTableSize; i++ {
		v, err := br.ReadBits(4)
		if err != nil {
			return nil, err
		}
		if v == 0xF {
			zeroCount, err := br.ReadBits(4)
			if err != nil {
				return nil, err
			}
			n := int(zeroCount)
			for j := 0; j < n && i < levelTableSize; j++ {
				lengths[i] = 0
				i++
			}
			i-- // compensate for the outer loop's i++
			continue
		}
		lengths[i] = uint8(v)
	}
	return lengths, nil
}

func readCombinedLengthVector(br *bitio.Reader, level *huffman.Table) ([]uint8, error) {
	out := make([]uint8, combinedLenVector)
	i := 0
	for i < combinedLenVector {
		sym, err := level.Decode(br)
		if err != nil {
			return nil, err
		}
		if sym < 16 {
			out[i] = uint8(sym)
			i++
			continue
		}
		if sym == 16 || sym == 17 {
			n := 0
			if (sym-16)&1 == 0 {
				n = 4
			}
			extraBits, err := br.ReadBits(uint32(3 + n))
			if err != nil {
				return nil, err
			}
			base := 3
			if sym == 17 {
				base = 11
			}
			cnt := base + int(extraBits)
			prev := uint8(0)
			if i > 0 {
				prev = out[i-1]
			}
			for j := 0; j < cnt && i < combinedLenVector; j++ {
				out[i] = prev
				i++
			}
			continue
		}
		// sym == 18 or 19: zero run
		n := 0
		if (sym-16)&1 == 0 {
			n = 4
		}
		extraBits, err := br.ReadBits(uint32(3 + n))
		if err != nil {
			return nil, err
		}
		base := 3
		if sym == 19 {
			base = 11
		}
		cnt := base + int(extraBits)
		for j := 0; j < cnt && i < combinedLenVector; j++ {
			out[i] = 0
			i++
		}
	}
	return out, nil
}

// ReadTables reads a fresh level table and decodes all four sub-tables
// from the combined length vector it drives.
func ReadTables(br *bitio.Reader) (*TableSet, error) {
	levelLens, err := readLevelTable(br)
	if err != nil {
		return nil, err
	}
	level := huffman.New(levelLens, quickBitsLevel)

	lv, err := readCombinedLengthVector(br, level)
	if err != nil {
		return nil, err
	}

	ts := &TableSet{}
	ts.Main = huffman.New(lv[0:mainTableSize], quickBitsMain)
	ts.Dist = huffman.New(lv[mainTableSize:mainTableSize+distTableSize], quickBitsDist)

	alignLens := lv[mainTableSize+distTableSize : mainTableSize+distTableSize+alignTableSize]
	ts.HasAlign = false
	for _, l := range alignLens {
		if l != 4 {
			ts.HasAlign = true
			break
		}
	}
	ts.Align = huffman.New(alignLens, quickBitsAlign)

	ts.Length = huffman.New(lv[mainTableSize+distTableSize+alignTableSize:], quickBitsLen)
	return ts, nil
}

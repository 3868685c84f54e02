package rar5

import (
	"errors"

	"github.com/javi11/rardecode/internal/bitio"
	"github.com/javi11/rardecode/internal/filterqueue"
	"github.com/javi11/rardecode/internal/window"
)

// ErrInvalidBackReference mirrors rar4's sentinel for the RAR5 decoder.
var ErrInvalidBackReference = errors.New("rar5: invalid back-reference")

// ErrIncompleteData is raised when input is exhausted before unpackedSize
// bytes have been produced.
var ErrIncompleteData = errors.New("rar5: incomplete data")

// ErrUnsupportedMethod is raised for a compression method outside [0,5].
var ErrUnsupportedMethod = errors.New("rar5: unsupported method")

// Decoder decodes one RAR5 compressed byte range at a time, carrying its
// own dictionary-sized sliding window.
type Decoder struct {
	win     *window.Window
	queue   filterqueue.Queue
	out     []byte
	written uint64

	recent  [numReps]uint32
	lastLen uint32
	tables  *TableSet
}

// New constructs a decoder with a window of size 1<<dictSizeLog bytes;
// dictSizeLog must be in [17,30].
func New(dictSizeLog uint) *Decoder {
	return &Decoder{win: window.New(dictSizeLog), recent: [numReps]uint32{1, 1, 1, 1}}
}

// Reset clears stream state but keeps the window allocation.
func (d *Decoder) Reset() {
	d.win.Reset()
	d.queue = filterqueue.Queue{}
	d.out = nil
	d.written = 0
	d.recent = [numReps]uint32{1, 1, 1, 1}
	d.lastLen = 0
	d.tables = nil
}

// BytesWritten returns the number of unpacked bytes produced so far.
func (d *Decoder) BytesWritten() uint64 { return d.written }

// Decompress decodes compressed into up to unpackedSize bytes. method 0
// means stored (copy); method 1-5 means block-decoded.
func (d *Decoder) Decompress(compressed []byte, unpackedSize uint64, method int, isSolid bool) ([]byte, error) {
	if method == 0 {
		n := uint64(len(compressed))
		if n > unpackedSize {
			n = unpackedSize
		}
		d.out = append(d.out, compressed[:n]...)
		d.written += n
		if d.written < unpackedSize {
			return d.out, ErrIncompleteData
		}
		return d.out[:unpackedSize], nil
	}
	if method < 0 || method > 5 {
		return nil, ErrUnsupportedMethod
	}

	if !isSolid {
		d.tables = nil
	}

	br := bitio.NewReader(compressed)
	for d.written < unpackedSize {
		d.queue.Drain(d.win, &d.out)

		br.AlignToByte()
		hdr, err := ReadBlockHeader(br)
		if err != nil {
			return nil, err
		}
		// The block's packed bits end hdr.BitSize bits into its final byte.
		blockEnd := br.BitPosition() + uint64(hdr.ByteSize)*8
		if hdr.ByteSize > 0 {
			blockEnd -= uint64(8 - hdr.BitSize)
		}
		if hdr.NewTables || d.tables == nil {
			tables, err := ReadTables(br)
			if err != nil {
				return nil, err
			}
			d.tables = tables
		}

		if err := d.decodeBlock(br, blockEnd, unpackedSize); err != nil {
			return nil, err
		}

		if hdr.IsLastBlock && d.written < unpackedSize {
			// A last-block flag mid-stream below the target size means
			// the stream is exhausted early; surface as incomplete.
			break
		}
	}

	d.queue.Finish(d.win, &d.out)
	if uint64(len(d.out)) < unpackedSize {
		return d.out, ErrIncompleteData
	}
	return d.out[:unpackedSize], nil
}

func (d *Decoder) decodeBlock(br *bitio.Reader, blockEnd uint64, unpackedSize uint64) error {
	for d.written < unpackedSize && br.BitPosition() < blockEnd {
		sym, err := d.tables.Main.Decode(br)
		if err != nil {
			return err
		}

		switch {
		case sym < 256:
			d.win.WriteLiteral(byte(sym))
			d.written++

		case sym == 256:
			if err := d.readFilter(br); err != nil {
				return err
			}

		case sym == 257:
			if err := d.copyMatch(d.recent[0], d.lastLen); err != nil {
				return err
			}

		case sym >= 258 && sym <= 261:
			lenSym, err := d.tables.Length.Decode(br)
			if err != nil {
				return err
			}
			length, err := d.slotToLength(br, lenSym)
			if err != nil {
				return err
			}
			idx := int(sym - 258)
			dist := d.recent[idx]
			for j := idx; j > 0; j-- {
				d.recent[j] = d.recent[j-1]
			}
			d.recent[0] = dist
			if err := d.copyMatchNoPush(dist, length); err != nil {
				return err
			}

		default:
			lenSlot := sym - 262
			length, err := d.slotToLength(br, uint16(lenSlot))
			if err != nil {
				return err
			}
			distSym, err := d.tables.Dist.Decode(br)
			if err != nil {
				return err
			}
			dist, err := d.decodeOffset(br, distSym)
			if err != nil {
				return err
			}
			copy(d.recent[1:], d.recent[:3])
			d.recent[0] = dist
			if err := d.copyMatchNoPush(dist, length); err != nil {
				return err
			}
		}

		// The loop condition stops at the block's end bit; this stops early
		// when the input runs out first.
		if br.IsEOF() {
			return nil
		}
	}
	return nil
}

func (d *Decoder) slotToLength(br *bitio.Reader, slot uint16) (uint32, error) {
	s := uint32(slot)
	if s < 8 {
		return s + 2, nil
	}
	extra := (s - 4) / 4
	base := ((4 + (s & 3)) << extra) + 2
	n, err := br.ReadBits(extra)
	if err != nil {
		return 0, err
	}
	return base + n, nil
}

func (d *Decoder) decodeOffset(br *bitio.Reader, slot uint16) (uint32, error) {
	s := uint32(slot)
	if s < 4 {
		return s + 1, nil
	}
	numBits := s/2 - 1
	base := (2 | (s & 1)) << numBits
	if numBits < 4 {
		n, err := br.ReadBits(numBits)
		if err != nil {
			return 0, err
		}
		return base + n + 1, nil
	}
	high, err := br.ReadBits(numBits - 4)
	if err != nil {
		return 0, err
	}
	var low uint32
	if d.tables.HasAlign {
		lowSym, err := d.tables.Align.Decode(br)
		if err != nil {
			return 0, err
		}
		low = uint32(lowSym)
	} else {
		n, err := br.ReadBits(numAlignBits)
		if err != nil {
			return 0, err
		}
		low = n
	}
	return base + (high << 4) + low + 1, nil
}

func (d *Decoder) copyMatch(dist, length uint32) error {
	if err := d.win.CopyMatch(dist, length); err != nil {
		return ErrInvalidBackReference
	}
	d.written += uint64(length)
	d.lastLen = length
	return nil
}

func (d *Decoder) copyMatchNoPush(dist, length uint32) error {
	return d.copyMatch(dist, length)
}

func (d *Decoder) readFilter(br *bitio.Reader) error {
	blockStart, err := readFilterVarint(br)
	if err != nil {
		return err
	}
	blockLen, err := readFilterVarint(br)
	if err != nil {
		return err
	}
	kindBits, err := br.ReadBits(3)
	if err != nil {
		return err
	}

	channels := 1
	if FilterKind(kindBits) == FilterDelta {
		n, err := br.ReadBits(5)
		if err != nil {
			return err
		}
		channels = int(n) + 1
	}

	actualStart := d.written + uint64(blockStart)
	d.queue.Enqueue(PreparedFilter{
		Kind:          FilterKind(kindBits),
		BlockStartAbs: actualStart,
		BlockLen:      blockLen,
		Channels:      channels,
	})
	return nil
}

// readFilterVarint reads a RAR5-style 7-bit continuation varint inline
// from the bit reader (byte-aligned access over the same stream).
func readFilterVarint(br *bitio.Reader) (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := br.ReadBits(8)
		if err != nil {
			return 0, err
		}
		result |= (b & 0x7F) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 32 {
			break
		}
	}
	return result, nil
}

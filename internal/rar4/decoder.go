package rar4

import (
	"errors"

	"github.com/javi11/rardecode/internal/bitio"
	"github.com/javi11/rardecode/internal/filterqueue"
	"github.com/javi11/rardecode/internal/ppmd"
	"github.com/javi11/rardecode/internal/window"
)

// ErrInvalidBackReference is surfaced when a decoded distance is zero or
// reaches further back than the bytes written so far.
var ErrInvalidBackReference = errors.New("rar4: invalid back-reference")

// ErrUnsupportedMethod is raised when a PPM-mode stream fails to init.
var ErrUnsupportedMethod = errors.New("rar4: unsupported method")

// ErrIncompleteData is raised when the input is exhausted before
// unpackedSize bytes have been produced.
var ErrIncompleteData = errors.New("rar4: incomplete data")

const windowLog = 21 // RAR4 dictionary size is fixed at 2^21 bytes.

// Decoder decodes one RAR 2.9/3.x/4.x compressed byte range at a time.
type Decoder struct {
	win     *window.Window
	queue   filterqueue.Queue
	out     []byte
	written uint64

	// recent-distance stack, shared across LZ and PPM modes
	recent   [4]uint32
	lastDist uint32
	lastLen  uint32

	// VM filter bookkeeping: stored filter kinds and their last-used
	// block lengths, indexed by filt_pos, so a later filter descriptor
	// can reuse a previously transmitted bytecode without resending it.
	filters    []FilterKind
	oldLengths []uint32
	lastFilter int
}

// New constructs a decoder with a fresh 2 MiB (2^21) sliding window.
func New() *Decoder {
	return &Decoder{win: window.New(windowLog)}
}

// Reset clears all stream state but keeps the window allocation.
func (d *Decoder) Reset() {
	d.win.Reset()
	d.queue = filterqueue.Queue{}
	d.out = nil
	d.written = 0
	d.recent = [4]uint32{}
	d.lastDist = 0
	d.lastLen = 0
	d.filters = nil
	d.oldLengths = nil
	d.lastFilter = 0
}

// BytesWritten returns the number of unpacked bytes produced so far.
func (d *Decoder) BytesWritten() uint64 { return d.written }

// Decompress decodes compressed into up to unpackedSize bytes of output.
func (d *Decoder) Decompress(compressed []byte, unpackedSize uint64) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, ErrIncompleteData
	}

	br := bitio.NewReader(compressed)
	ppmMode, err := br.ReadBit()
	if err != nil {
		return nil, err
	}

	if ppmMode {
		if err := d.decompressPPM(br, unpackedSize); err != nil {
			return nil, err
		}
	} else {
		if err := d.decompressLZ(br, unpackedSize); err != nil {
			return nil, err
		}
	}

	d.queue.Finish(d.win, &d.out)
	if uint64(len(d.out)) < unpackedSize {
		return d.out, ErrIncompleteData
	}
	return d.out[:unpackedSize], nil
}

func (d *Decoder) pushDistance(dist uint32) {
	for i := 3; i > 0; i-- {
		d.recent[i] = d.recent[i-1]
	}
	d.recent[0] = dist
}

func (d *Decoder) useRecent(i int) uint32 {
	dist := d.recent[i]
	for j := i; j > 0; j-- {
		d.recent[j] = d.recent[j-1]
	}
	d.recent[0] = dist
	return dist
}

func (d *Decoder) decompressLZ(br *bitio.Reader, unpackedSize uint64) error {
	_, err := br.ReadBit() // reset-tables flag bit, consumed unconditionally per header
	if err != nil {
		return err
	}

	tables, err := buildTables(br)
	if err != nil {
		return err
	}

	for d.written < unpackedSize {
		d.queue.Drain(d.win, &d.out)

		sym, err := tables.main.Decode(br)
		if err != nil {
			return err
		}

		switch {
		case sym < 256:
			d.win.WriteLiteral(byte(sym))
			d.written++

		case sym == 256:
			more, err := br.ReadBit()
			if err != nil {
				return err
			}
			if more {
				tables, err = buildTables(br)
				if err != nil {
					return err
				}
				continue
			}
			return nil

		case sym == 257:
			return nil

		case sym == 258:
			if err := d.copyMatch(d.lastDist, d.lastLen); err != nil {
				return err
			}

		case sym >= 259 && sym <= 262:
			lenSym, err := tables.length.Decode(br)
			if err != nil {
				return err
			}
			n, err := br.ReadBits(lengthExtra[lenSym])
			if err != nil {
				return err
			}
			length := lengthBase[lenSym] + n + 2
			dist := d.useRecent(int(sym - 259))
			if err := d.copyMatch(dist, length); err != nil {
				return err
			}

		case sym >= 263 && sym <= 270:
			i := sym - 263
			n, err := br.ReadBits(shortBits[i])
			if err != nil {
				return err
			}
			dist := shortBase[i] + n + 1
			if err := d.copyMatch(dist, 2); err != nil {
				return err
			}
			d.pushDistance(dist)

		case sym >= 271 && sym <= 298:
			i := sym - 271
			n, err := br.ReadBits(lengthExtra[i])
			if err != nil {
				return err
			}
			length := lengthBase[i] + n + 3

			distSym, err := tables.dist.Decode(br)
			if err != nil {
				return err
			}
			dist, err := d.decodeDistance(br, tables, distSym)
			if err != nil {
				return err
			}
			if err := d.copyMatch(dist, length); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Decoder) decodeDistance(br *bitio.Reader, tables *tableSet, distSym uint16) (uint32, error) {
	if int(distSym) >= len(distBase) {
		return 0, ErrInvalidBackReference
	}
	if distSym <= 9 {
		n, err := br.ReadBits(distExtra[distSym])
		if err != nil {
			return 0, err
		}
		return distBase[distSym] + n + 1, nil
	}

	extra := distExtra[distSym]
	high, err := br.ReadBits(extra - 4)
	if err != nil {
		return 0, err
	}
	lowSym, err := tables.lowDist.Decode(br)
	if err != nil {
		return 0, err
	}
	low := uint32(lowSym)
	return distBase[distSym] + (high << 4) + low + 1, nil
}

func (d *Decoder) copyMatch(dist, length uint32) error {
	if err := d.win.CopyMatch(dist, length); err != nil {
		return ErrInvalidBackReference
	}
	d.written += uint64(length)
	d.lastDist = dist
	d.lastLen = length
	d.pushDistance(dist)
	return nil
}

const (
	ppmCtrlUnused     = 0
	ppmCtrlLiteralEsc = 1
	ppmCtrlBlockEnd   = 2
	ppmCtrlVMFilter   = 3
	ppmCtrlLZMatch    = 4
	ppmCtrlRLEMatch   = 5
)

func (d *Decoder) decompressPPM(br *bitio.Reader, unpackedSize uint64) error {
	model := ppmd.NewModel()
	if err := model.Init(br, 16); err != nil {
		return ErrUnsupportedMethod
	}
	esc := model.EscChar()

	for d.written < unpackedSize {
		d.queue.Drain(d.win, &d.out)

		sym, err := model.DecodeSymbol()
		if err != nil {
			return err
		}

		if sym != esc {
			d.win.WriteLiteral(sym)
			d.written++
			continue
		}

		ctrl, err := model.DecodeSymbol()
		if err != nil {
			return err
		}

		switch ctrl {
		case ppmCtrlUnused:
			return nil
		case ppmCtrlLiteralEsc:
			d.win.WriteLiteral(esc)
			d.written++
		case ppmCtrlBlockEnd:
			return nil
		case ppmCtrlVMFilter:
			if err := d.readInlineFilter(model); err != nil {
				return err
			}
		case ppmCtrlLZMatch:
			b0, err := model.DecodeSymbol()
			if err != nil {
				return err
			}
			b1, err := model.DecodeSymbol()
			if err != nil {
				return err
			}
			b2, err := model.DecodeSymbol()
			if err != nil {
				return err
			}
			lenByte, err := model.DecodeSymbol()
			if err != nil {
				return err
			}
			dist := uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
			dist += 2
			length := uint32(lenByte) + 32
			if err := d.copyMatch(dist, length); err != nil {
				return err
			}
		case ppmCtrlRLEMatch:
			lenByte, err := model.DecodeSymbol()
			if err != nil {
				return err
			}
			length := uint32(lenByte) + 4
			if err := d.copyMatch(1, length); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

// readInlineFilter reads a VM code block from the PPM symbol stream and
// hands it to addFilterCode. The length encoding is keyed off the
// first_byte itself (also the add_code flags byte, read below), not a
// separate length prefix: low 3 bits + 1, with 7 and 8 meaning "read one
// more byte" / "read two more bytes as a 16-bit length". Grounded on
// rar29.rs's ctrl==3 ("VM code") branch of decode_block_ppm.
func (d *Decoder) readInlineFilter(model *ppmdModelDecoder) error {
	firstByte, err := model.DecodeSymbol()
	if err != nil {
		return err
	}

	length := uint32(firstByte&7) + 1
	switch length {
	case 7:
		b1, err := model.DecodeSymbol()
		if err != nil {
			return err
		}
		length = uint32(b1) + 7
	case 8:
		b1, err := model.DecodeSymbol()
		if err != nil {
			return err
		}
		b2, err := model.DecodeSymbol()
		if err != nil {
			return err
		}
		length = uint32(b1)*256 + uint32(b2)
	}
	if length == 0 {
		return nil
	}

	code := make([]byte, length)
	for i := range code {
		b, err := model.DecodeSymbol()
		if err != nil {
			return err
		}
		code[i] = b
	}

	d.addFilterCode(firstByte, code)
	return nil
}

// windowedBits24 returns the bit-unaligned 16-bit window the reference
// decoder calls getbits(): the 3 bytes starting at bitPos/8, shifted so
// the window starts exactly at bitPos. Ported from vm.rs's read_data
// (the same inline byte-windowing is repeated there for every field).
func windowedBits24(code []byte, bitPos int) uint32 {
	bytePos := bitPos / 8
	bitOff := uint(bitPos % 8)
	var val uint32
	if bytePos < len(code) {
		val |= uint32(code[bytePos]) << 16
	}
	if bytePos+1 < len(code) {
		val |= uint32(code[bytePos+1]) << 8
	}
	if bytePos+2 < len(code) {
		val |= uint32(code[bytePos+2])
	}
	return val >> (8 - bitOff)
}

// readVMData decodes one variable-length value from the bit-packed VM
// code header: a 2-bit tag selects a 4-bit, 8-bit (optionally
// sign-extended), 16-bit, or 32-bit payload. Ported from vm.rs's
// RarVM::read_data.
func readVMData(code []byte, bitPos *int) uint32 {
	if len(code)*8-*bitPos < 2 {
		return 0
	}
	val := windowedBits24(code, *bitPos) & 0xffff
	switch val & 0xc000 {
	case 0:
		*bitPos += 6
		return (val >> 10) & 0xf
	case 0x4000:
		if val&0x3c00 == 0 {
			*bitPos += 14
			return 0xffffff00 | ((val >> 2) & 0xff)
		}
		*bitPos += 10
		return (val >> 6) & 0xff
	case 0x8000:
		*bitPos += 2
		raw := windowedBits24(code, *bitPos) & 0xffff
		*bitPos += 16
		return raw
	default:
		*bitPos += 2
		high := windowedBits24(code, *bitPos) & 0xffff
		*bitPos += 16
		low := windowedBits24(code, *bitPos) & 0xffff
		*bitPos += 16
		return (high << 16) | low
	}
}

// addFilterCode parses the bit-packed VM code block (filter-reuse index,
// block start/length, optional register init mask, and for new filters
// the VM bytecode itself) and enqueues a PreparedFilter. A malformed or
// out-of-range descriptor is silently dropped, matching add_code's bool
// return being discarded by its only caller in rar29.rs. Ported from
// vm.rs's RarVM::add_code.
func (d *Decoder) addFilterCode(firstByte byte, code []byte) {
	bitPos := 0

	filtPos := d.lastFilter
	if firstByte&0x80 != 0 {
		pos := readVMData(code, &bitPos)
		if pos == 0 {
			d.filters = d.filters[:0]
			d.oldLengths = d.oldLengths[:0]
			filtPos = 0
		} else {
			filtPos = int(pos - 1)
		}
	}
	if filtPos > len(d.filters) || filtPos > 1024 {
		return
	}
	d.lastFilter = filtPos
	newFilter := filtPos == len(d.filters)

	blockStart := readVMData(code, &bitPos)
	if firstByte&0x40 != 0 {
		blockStart += 258
	}

	var blockLength uint32
	if firstByte&0x20 != 0 {
		blockLength = readVMData(code, &bitPos)
		if filtPos < len(d.oldLengths) {
			d.oldLengths[filtPos] = blockLength
		}
	} else if filtPos < len(d.oldLengths) {
		blockLength = d.oldLengths[filtPos]
	}

	absoluteBlockStart := d.written + uint64(blockStart)

	var regs [7]uint32
	regs[3] = vmMemSize
	regs[4] = blockLength
	regs[6] = uint32(absoluteBlockStart)

	if firstByte&0x10 != 0 {
		val := windowedBits24(code, bitPos)
		initMask := byte((val >> 9) & 0x7f)
		bitPos += 7
		for i := 0; i < 7; i++ {
			if initMask&(1<<uint(i)) != 0 {
				regs[i] = readVMData(code, &bitPos)
			}
		}
	}

	var kind FilterKind
	if newFilter {
		vmCodeSize := int(readVMData(code, &bitPos))
		if vmCodeSize == 0 || vmCodeSize >= 0x10000 || bitPos+vmCodeSize*8 > len(code)*8 {
			return
		}
		vmCode := make([]byte, vmCodeSize)
		for i := range vmCode {
			val := windowedBits24(code, bitPos)
			vmCode[i] = byte((val >> 8) & 0xff)
			bitPos += 8
		}
		kind = IdentifyFilter(vmCode)
		d.filters = append(d.filters, kind)
		d.oldLengths = append(d.oldLengths, blockLength)
	} else if filtPos < len(d.filters) {
		kind = d.filters[filtPos]
	}

	d.queue.Enqueue(PreparedFilter{
		Kind:          kind,
		BlockStartAbs: absoluteBlockStart,
		BlockLen:      blockLength,
		Registers:     regs,
	})
}

type ppmdModelDecoder = ppmd.Model

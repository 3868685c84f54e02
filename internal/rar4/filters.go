package rar4

import (
	"github.com/javi11/rardecode/internal/rarcrc"
)

// FilterKind identifies one of the six fixed RAR4 VM filter bytecodes.
type FilterKind int

const (
	FilterUnknown FilterKind = iota
	FilterE8
	FilterE8E9
	FilterItanium
	FilterDelta
	FilterRGB
	FilterAudio
)

type filterSignature struct {
	length int
	crc    uint32
	kind   FilterKind
}

// filterSignatures are the six (length, CRC32) identification pairs the
// RAR4 filter VM surface matches bytecode against; the VM itself is never
// interpreted, only identified. Grounded on
// original_source/src/decompress/vm.rs's FILTER_SIGNATURES table.
var filterSignatures = []filterSignature{
	{53, 0xad576887, FilterE8},
	{57, 0x3cd7e57e, FilterE8E9},
	{120, 0x3769893f, FilterItanium},
	{29, 0x0e06077d, FilterDelta},
	{149, 0x1c2c5dc8, FilterRGB},
	{216, 0xbc85e701, FilterAudio},
}

// IdentifyFilter matches bytecode against the fixed signature table. Each
// bytecode begins with a byte equal to the XOR of every subsequent byte;
// bytecodes that fail that check or don't match any known signature
// return FilterUnknown and are silently skipped by the caller. Mirrors
// vm.rs's identify_filter.
func IdentifyFilter(code []byte) FilterKind {
	if len(code) < 1 {
		return FilterUnknown
	}
	xor := byte(0)
	for _, b := range code[1:] {
		xor ^= b
	}
	if xor != code[0] {
		return FilterUnknown
	}
	crc := rarcrc.Checksum(code)
	for _, sig := range filterSignatures {
		if len(code) == sig.length && crc == sig.crc {
			return sig.kind
		}
	}
	return FilterUnknown
}

const (
	vmMemSize         = 1 << 18
	maxUnpackChannels = 1024
	fileSizeConst     = 1 << 24
)

// PreparedFilter carries the register file and placement needed to apply
// an identified filter once the window has accumulated past its block.
// Registers mirrors vm.rs's PreparedFilter.init_r: R[0] is channels
// (Delta/Audio) or width (RGB), R[1] is pos_r (RGB only), R[6] is the
// filter's absolute start position truncated to 32 bits (file_offset for
// E8/E8E9/Itanium).
type PreparedFilter struct {
	Kind          FilterKind
	BlockStartAbs uint64
	BlockLen      uint32
	Registers     [7]uint32
}

func (f PreparedFilter) BlockStart() uint64  { return f.BlockStartAbs }
func (f PreparedFilter) BlockLength() uint32 { return f.BlockLen }

// Apply runs the identified transform over block, a copy of the window
// bytes covering this filter's range. Grounded on vm.rs's execute_filter
// register-to-parameter mapping.
func (f PreparedFilter) Apply(block []byte) ([]byte, bool) {
	r := f.Registers
	switch f.Kind {
	case FilterE8:
		return applyE8E9(block, r[6], false)
	case FilterE8E9:
		return applyE8E9(block, r[6], true)
	case FilterItanium:
		return applyItanium(block, r[6])
	case FilterDelta:
		return applyDelta(block, int(r[0]))
	case FilterRGB:
		return applyRGB(block, int(r[0]), int(r[1]))
	case FilterAudio:
		return applyAudio(block, int(r[0]))
	default:
		return nil, false
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// applyE8E9 rewrites x86 CALL/JMP (E8/E9) relative address immediates,
// ported from vm.rs's filter_e8e9/transform_e8e9_addr.
func applyE8E9(block []byte, fileOffset uint32, includeE9 bool) ([]byte, bool) {
	dataSize := len(block)
	if dataSize < 4 || dataSize > vmMemSize {
		return nil, false
	}
	out := make([]byte, dataSize)
	copy(out, block)

	searchEnd := dataSize - 4
	curPos := 0
	for curPos < searchEnd {
		b := out[curPos]
		if b != 0xE8 && !(includeE9 && b == 0xE9) {
			curPos++
			continue
		}
		addrPos := curPos + 1
		offsetVal := uint32(addrPos) + fileOffset
		addr := uint32(out[addrPos]) | uint32(out[addrPos+1])<<8 | uint32(out[addrPos+2])<<16 | uint32(out[addrPos+3])<<24
		transformE8E9Addr(out[addrPos:addrPos+4], addr, offsetVal)
		curPos = addrPos + 4
	}
	return out, true
}

func transformE8E9Addr(dest []byte, addr, offset uint32) {
	if addr&0x80000000 != 0 {
		if (addr+offset)&0x80000000 == 0 {
			newAddr := addr + fileSizeConst
			dest[0], dest[1], dest[2], dest[3] = byte(newAddr), byte(newAddr>>8), byte(newAddr>>16), byte(newAddr>>24)
		}
	} else if (addr-fileSizeConst)&0x80000000 != 0 {
		newAddr := addr - offset
		dest[0], dest[1], dest[2], dest[3] = byte(newAddr), byte(newAddr>>8), byte(newAddr>>16), byte(newAddr>>24)
	}
}

// itaniumMasks selects, per 5-bit opcode-class nibble, which of a
// 16-byte bundle's three 41-bit slots may carry a branch-target
// immediate. Ported from vm.rs's filter_itanium MASKS table.
var itaniumMasks = [16]byte{4, 4, 6, 6, 0, 0, 7, 7, 4, 4, 0, 0, 4, 4, 0, 0}

// applyItanium rewrites IA-64 bundle branch-target immediates so they
// stay correct after the file has moved to a new base address. Ported
// from vm.rs's filter_itanium/itanium_get_bits/itanium_set_bits.
func applyItanium(block []byte, fileOffset uint32) ([]byte, bool) {
	dataSize := len(block)
	if dataSize < 21 || dataSize > vmMemSize {
		return nil, false
	}
	out := make([]byte, dataSize)
	copy(out, block)

	curPos := 0
	fileOff := fileOffset >> 4
	for curPos < dataSize-21 {
		nibble := int32(out[curPos]&0x1f) - 0x10
		if nibble >= 0 {
			cmdMask := itaniumMasks[nibble]
			if cmdMask != 0 {
				for i := 0; i <= 2; i++ {
					if cmdMask&(1<<uint(i)) == 0 {
						continue
					}
					startPos := i*41 + 5
					opType := itaniumGetBits(out, curPos, startPos+37, 4)
					if opType == 5 {
						offset := itaniumGetBits(out, curPos, startPos+13, 20)
						itaniumSetBits(out, curPos, (offset-fileOff)&0xfffff, startPos+13, 20)
					}
				}
			}
		}
		curPos += 16
		fileOff++
	}
	return out, true
}

func itaniumGetBits(mem []byte, base, bitPos, bitCount int) uint32 {
	inAddr := base + bitPos/8
	inBit := uint(bitPos & 7)
	var bitField uint32
	if inAddr < len(mem) {
		bitField |= uint32(mem[inAddr])
	}
	if inAddr+1 < len(mem) {
		bitField |= uint32(mem[inAddr+1]) << 8
	}
	if inAddr+2 < len(mem) {
		bitField |= uint32(mem[inAddr+2]) << 16
	}
	if inAddr+3 < len(mem) {
		bitField |= uint32(mem[inAddr+3]) << 24
	}
	bitField >>= inBit
	return bitField & (0xffffffff >> uint(32-bitCount))
}

func itaniumSetBits(mem []byte, base int, bitField uint32, bitPos, bitCount int) {
	inAddr := base + bitPos/8
	inBit := uint(bitPos & 7)
	andMask := ^(((uint32(1) << uint(bitCount)) - 1) << inBit)
	bitField <<= inBit
	for i := 0; i < 4; i++ {
		if inAddr+i < len(mem) {
			mem[inAddr+i] &= byte(andMask >> uint(i*8))
			mem[inAddr+i] |= byte(bitField >> uint(i*8))
		}
	}
}

// applyDelta reconstructs per-channel running byte deltas, ported from
// vm.rs's filter_delta. The transform writes into an upper scratch
// region sized 2*len(block) and returns that region, mirroring the VM's
// mem[data_size:]/mem[:data_size] split.
func applyDelta(block []byte, channels int) ([]byte, bool) {
	dataSize := len(block)
	if dataSize > vmMemSize/2 || channels <= 0 || channels > maxUnpackChannels {
		return nil, false
	}
	mem := make([]byte, dataSize*2)
	copy(mem, block)
	border := dataSize * 2
	srcPos := 0
	for c := 0; c < channels; c++ {
		var prev byte
		for destPos := dataSize + c; destPos < border; destPos += channels {
			prev -= mem[srcPos]
			mem[destPos] = prev
			srcPos++
		}
	}
	return mem[dataSize:], true
}

// applyRGB reconstructs a Paeth-style (PNG-like) per-channel predictor
// over 3-channel pixel data, followed by the R/B += G correlation pass.
// Ported from vm.rs's filter_rgb.
func applyRGB(block []byte, width, posR int) ([]byte, bool) {
	dataSize := len(block)
	w := width - 3
	if w < 0 {
		w = 0
	}
	if dataSize < 3 || dataSize > vmMemSize/2 || w > dataSize || posR < 0 || posR > 2 {
		return nil, false
	}
	mem := make([]byte, dataSize*2)
	copy(mem, block)

	const channels = 3
	srcIdx := 0
	for ch := 0; ch < channels; ch++ {
		var prevByte int32
		for i := ch; i < dataSize; i += channels {
			var predicted int32
			if i >= w+3 {
				upperIdx := dataSize + i - w
				upperByte := int32(mem[upperIdx])
				upperLeftByte := int32(mem[upperIdx-3])
				pred := prevByte + upperByte - upperLeftByte
				pa := abs32(pred - prevByte)
				pb := abs32(pred - upperByte)
				pc := abs32(pred - upperLeftByte)
				switch {
				case pa <= pb && pa <= pc:
					predicted = prevByte
				case pb <= pc:
					predicted = upperByte
				default:
					predicted = upperLeftByte
				}
			} else {
				predicted = prevByte
			}
			prevByte = (predicted - int32(mem[srcIdx])) & 0xff
			mem[dataSize+i] = byte(prevByte)
			srcIdx++
		}
	}

	border := dataSize - 2
	for i := posR; i < border; i += 3 {
		g := mem[dataSize+i+1]
		mem[dataSize+i] += g
		mem[dataSize+i+2] += g
	}
	return mem[dataSize:], true
}

// applyAudio reconstructs an adaptive linear audio predictor per
// channel, ported from vm.rs's filter_audio.
func applyAudio(block []byte, channels int) ([]byte, bool) {
	dataSize := len(block)
	if dataSize > vmMemSize/2 || channels <= 0 || channels > 128 {
		return nil, false
	}
	mem := make([]byte, dataSize*2)
	copy(mem, block)

	srcIdx := 0
	for ch := 0; ch < channels; ch++ {
		var prevByte, prevDelta int32
		var dif [7]uint32
		var d1, d2, k1, k2, k3 int32
		byteCount := uint32(0)

		for i := ch; i < dataSize; i += channels {
			d3 := d2
			d2 = prevDelta - d1
			d1 = prevDelta

			sum := 8*prevByte + k1*d1 + k2*d2 + k3*d3
			predicted := uint32(sum>>3) & 0xff
			curByte := uint32(mem[srcIdx])
			srcIdx++

			result := (predicted - curByte) & 0xff
			mem[dataSize+i] = byte(result)
			prevDelta = int32(int8(byte((result - uint32(prevByte)) & 0xff)))
			prevByte = int32(result)

			d := int32(int8(byte(curByte))) << 3

			dif[0] += uint32(abs32(d))
			dif[1] += uint32(abs32(d - d1))
			dif[2] += uint32(abs32(d + d1))
			dif[3] += uint32(abs32(d - d2))
			dif[4] += uint32(abs32(d + d2))
			dif[5] += uint32(abs32(d - d3))
			dif[6] += uint32(abs32(d + d3))

			if byteCount&0x1f == 0 {
				minDif := dif[0]
				numMinDif := 0
				dif[0] = 0
				for j := 1; j < 7; j++ {
					if dif[j] < minDif {
						minDif = dif[j]
						numMinDif = j
					}
					dif[j] = 0
				}
				switch numMinDif {
				case 1:
					if k1 >= -16 {
						k1--
					}
				case 2:
					if k1 < 16 {
						k1++
					}
				case 3:
					if k2 >= -16 {
						k2--
					}
				case 4:
					if k2 < 16 {
						k2++
					}
				case 5:
					if k3 >= -16 {
						k3--
					}
				case 6:
					if k3 < 16 {
						k3++
					}
				}
			}
			byteCount++
		}
	}
	return mem[dataSize:], true
}

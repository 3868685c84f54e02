package ppmd

import "io"

const (
	intBits    = 7
	periodBits = 7
	totBits    = intBits + periodBits
	interval   = 1 << intBits
	binScale   = 1 << totBits
	maxFreq    = 124
	maxOrderCap = 64
)

var expEscape = [16]byte{25, 14, 9, 7, 5, 5, 4, 4, 4, 3, 3, 3, 2, 2, 2, 2}

var initBinEsc = [8]uint16{0x3CDD, 0x1F3F, 0x59BF, 0x48F3, 0x64A1, 0x5ABC, 0x6632, 0x6051}

// see2Context is the Secondary Escape Estimation state: a slowly adapting
// escape-probability counter shared by every (order, context-shape) bucket
// that maps to it.
type see2Context struct {
	summ  uint16
	shift uint8
	count uint8
}

func (s *see2Context) init(val uint16) {
	s.shift = periodBits - 4
	s.summ = val << s.shift
	s.count = 4
}

func (s *see2Context) mean() uint32 {
	ret := uint32(s.summ) >> s.shift
	s.summ -= uint16(ret)
	if ret == 0 {
		return 1
	}
	return ret
}

func (s *see2Context) update() {
	if s.shift < periodBits {
		s.count--
		if s.count == 0 {
			s.summ <<= 1
			s.count = 3 << s.shift
			s.shift++
		}
	}
}

// Model is a PPMd-II (order-N escape, variant D) decoder. It owns its own
// arena and is reset by Init, matching the reference "resize on demand"
// allocator behavior. The sub-allocator's glue_free_blocks coalescing
// pass and the rescale stats-array shrink are both left as documented
// simplifications, matching the reference implementation this model is
// ported from.
type Model struct {
	alloc *allocator
	rc    *rangeCoder

	minContext, maxContext uint32
	foundState             state

	orderFall  int
	maxOrderN  int
	initRL     int
	runLength  int
	numMasked  int
	prevSuccess int
	hiBitsFlag uint8
	escCount   byte

	escChar byte

	charMask  [256]byte
	ns2Indx   [256]byte
	ns2BSIndx [256]byte
	hb2Flag   [256]byte

	binSumm   [128][64]uint16
	see2      [25][16]see2Context
	dummySee2 see2Context
}

// NewModel constructs an unconfigured decoder; call Init per compressed
// block before decoding symbols.
func NewModel() *Model {
	return &Model{alloc: newAllocator()}
}

// Init reads the PPMd header byte(s) from src and prepares the model for
// a fresh stream. heapSizeMB is the sub-allocator arena size in megabytes.
func (m *Model) Init(src io.ByteReader, heapSizeMB uint32) error {
	hdr, err := src.ReadByte()
	if err != nil {
		return err
	}
	reset := hdr&0x20 != 0
	customEsc := hdr&0x40 != 0
	order := int(hdr&0x1F) + 1
	if order > 16 {
		order = 16 + (order-16)*3
	}
	if order > maxOrderCap {
		order = maxOrderCap
	}
	m.maxOrderN = order

	m.escChar = 2
	if customEsc {
		b, err := src.ReadByte()
		if err != nil {
			return err
		}
		m.escChar = b
	}

	rc, err := newRangeCoder(src)
	if err != nil {
		return err
	}
	m.rc = rc

	if reset || m.alloc.heap == nil {
		m.alloc.resize(heapSizeMB)
		m.startModel()
	}
	return nil
}

// EscChar returns the configured control-code escape byte for this stream.
func (m *Model) EscChar() byte { return m.escChar }

func (m *Model) startModel() {
	m.orderFall = m.maxOrderN
	if m.maxOrderN < 12 {
		m.initRL = -m.maxOrderN - 1
	} else {
		m.initRL = -12 - 1
	}
	m.runLength = m.initRL
	m.prevSuccess = 0

	m.ns2BSIndx[0] = 0
	m.ns2BSIndx[1] = 2
	for i := 2; i < 11; i++ {
		m.ns2BSIndx[i] = 4
	}
	for i := 11; i < 256; i++ {
		m.ns2BSIndx[i] = 6
	}

	for i := 0; i < 3; i++ {
		m.ns2Indx[i] = byte(i)
	}
	m1, k := 3, 1
	for i := 3; i < 256; i++ {
		m.ns2Indx[i] = byte(m1)
		k--
		if k == 0 {
			m1++
			k = m1 - 2
		}
	}

	for i := 0; i < 0x40; i++ {
		m.hb2Flag[i] = 0
	}
	for i := 0x40; i < 0x100; i++ {
		m.hb2Flag[i] = 8
	}

	m.restartModel()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (m *Model) restartModel() {
	for i := range m.alloc.freeList {
		m.alloc.freeList[i] = 0
	}
	m.alloc.textPtr = 0
	m.alloc.hiUnit = m.alloc.heapEnd
	m.alloc.loUnit = m.alloc.unitsStart
	m.alloc.glueCount = 0

	m.orderFall = m.maxOrderN
	m.runLength = m.initRL
	m.prevSuccess = 0

	m.alloc.hiUnit -= unitSize
	root := m.alloc.hiUnit
	m.minContext = root
	m.maxContext = root

	rc := m.alloc.ctxAt(root)
	rc.setSuffix(0)
	rc.setNumStats(256)
	rc.setSummFreq(256 + 1)

	statsOff := m.alloc.loUnit
	m.alloc.loUnit += m.alloc.u2b(256 / 2)
	rc.setStatsPtr(statsOff)

	for i := 0; i < 256; i++ {
		st := rc.stateAt(i)
		st.setSymbol(byte(i))
		st.setFreq(1)
		st.setSuccessor(0)
	}

	for i := 0; i < 128; i++ {
		for k := 0; k < 8; k++ {
			val := uint16(binScale) - initBinEsc[k]/uint16(i+2)
			for n := 0; n < 64; n += 8 {
				m.binSumm[i][k+n] = val
			}
		}
	}
	for i := 0; i < 25; i++ {
		for k := 0; k < 16; k++ {
			m.see2[i][k].init(uint16(5*i + 10))
		}
	}
	m.dummySee2.shift = periodBits
}

// DecodeSymbol decodes and returns the next modeled byte.
func (m *Model) DecodeSymbol() (byte, error) {
	mc := m.alloc.ctxAt(m.minContext)
	if mc.numStats() != 1 {
		return m.decodeSymbol1()
	}
	return m.decodeBinSymbol()
}

func (m *Model) decodeBinSymbol() (byte, error) {
	mc := m.alloc.ctxAt(m.minContext)
	one := mc.oneState()

	suffixNumStats := 0
	if mc.suffix() != 0 {
		suffixNumStats = int(m.alloc.ctxAt(mc.suffix()).numStats()) - 1
	}
	idx2 := int(m.ns2BSIndx[suffixNumStats]) + m.prevSuccessBit() + int(m.hb2Flag[one.symbol()]) +
		2*int(m.hiBitsFlag) + int((m.runLength>>26)&0x20)
	if idx2 > 63 {
		idx2 &= 63
	}
	freqIdx := int(one.freq()) - 1
	if freqIdx < 0 {
		freqIdx = 0
	}

	bs := uint32(m.binSumm[freqIdx][idx2])
	mean := (bs + (1 << (periodBits - 2))) >> periodBits

	bit := m.rc.getCurrentShiftCount(totBits)
	if bit < bs {
		if err := m.rc.decodeSubRange(0, bs); err != nil {
			return 0, err
		}
		newBS := bs + interval - mean
		if newBS > 0xFFFF {
			newBS = 0xFFFF
		}
		m.binSumm[freqIdx][idx2] = uint16(newBS)
		m.foundState = one
		if one.freq() < 128 {
			one.setFreq(one.freq() + 1)
		}
		m.prevSuccess = 1
		m.runLength++
		sym := one.symbol()
		if err := m.nextContext(); err != nil {
			return 0, err
		}
		return sym, nil
	}

	if err := m.rc.decodeSubRange(bs, binScale); err != nil {
		return 0, err
	}
	newBS := bs - mean
	m.binSumm[freqIdx][idx2] = uint16(newBS)
	m.escCount = expEscape[newBS>>10]
	m.charMask = [256]byte{}
	m.charMask[one.symbol()] = 1
	m.numMasked = 1
	m.prevSuccess = 0
	return m.decodeEscape()
}

func (m *Model) prevSuccessBit() int {
	if m.prevSuccess != 0 {
		return 1
	}
	return 0
}

func (m *Model) decodeSymbol1() (byte, error) {
	mc := m.alloc.ctxAt(m.minContext)
	count := m.rc.getCurrentCount(uint32(mc.summFreq()))

	st0 := mc.stateAt(0)
	if count < uint32(st0.freq()) {
		hiCnt := uint32(st0.freq())
		if err := m.rc.decodeSubRange(0, hiCnt); err != nil {
			return 0, err
		}
		m.foundState = st0
		sym := st0.symbol()
		st0.setFreq(st0.freq() + 4)
		mc.setSummFreq(mc.summFreq() + 4)
		m.prevSuccess = boolToInt(2*uint32(st0.freq()) > uint32(mc.summFreq()))
		m.runLength += m.prevSuccess
		if st0.freq() > maxFreq {
			m.rescale()
		}
		if err := m.nextContext(); err != nil {
			return 0, err
		}
		return sym, nil
	}

	m.prevSuccess = 0
	hiCnt := uint32(st0.freq())
	n := int(mc.numStats())
	for i := 1; i < n; i++ {
		si := mc.stateAt(i)
		hiCnt += uint32(si.freq())
		if hiCnt > count {
			if err := m.rc.decodeSubRange(hiCnt-uint32(si.freq()), hiCnt); err != nil {
				return 0, err
			}
			m.update1(mc, i)
			sym := m.foundState.symbol()
			if err := m.nextContext(); err != nil {
				return 0, err
			}
			return sym, nil
		}
	}

	if count >= uint32(mc.summFreq()) {
		return 0, ErrModelCorruption
	}

	m.hiBitsFlag = m.hb2Flag[st0.symbol()]
	if err := m.rc.decodeSubRange(hiCnt, uint32(mc.summFreq())); err != nil {
		return 0, err
	}
	m.charMask = [256]byte{}
	for i := 0; i < n; i++ {
		m.charMask[mc.stateAt(i).symbol()] = 1
	}
	m.numMasked = n
	return m.decodeEscape()
}

func (m *Model) update1(mc ctx, idx int) {
	st := mc.stateAt(idx)
	st.setFreq(st.freq() + 4)
	mc.setSummFreq(mc.summFreq() + 4)
	if idx > 0 && st.freq() > mc.stateAt(idx-1).freq() {
		m.swapStates(st, mc.stateAt(idx-1))
		idx--
		st = mc.stateAt(idx)
	}
	m.foundState = st
	if st.freq() > maxFreq {
		m.rescale()
	}
}

func (m *Model) swapStates(a, b state) {
	sym, freq, succ := a.symbol(), a.freq(), a.successor()
	a.setSymbol(b.symbol())
	a.setFreq(b.freq())
	a.setSuccessor(b.successor())
	b.setSymbol(sym)
	b.setFreq(freq)
	b.setSuccessor(succ)
}

// decodeEscape walks the suffix chain to find the next context whose
// state count differs from the running mask, then decodes against it.
func (m *Model) decodeEscape() (byte, error) {
	for {
		m.orderFall++
		mc := m.alloc.ctxAt(m.minContext)
		suf := mc.suffix()
		if suf == 0 {
			return 0, ErrModelCorruption
		}
		m.minContext = suf
		if int(m.alloc.ctxAt(suf).numStats()) != m.numMasked {
			break
		}
	}
	return m.decodeSymbol2()
}

func (m *Model) decodeSymbol2() (byte, error) {
	mc := m.alloc.ctxAt(m.minContext)
	numStats := int(mc.numStats())

	var candidates []state
	freqSum := uint32(0)
	for i := 0; i < numStats; i++ {
		st := mc.stateAt(i)
		if m.charMask[st.symbol()] == 0 {
			candidates = append(candidates, st)
			freqSum += uint32(st.freq())
		}
	}

	see := m.makeEscFreq(mc, numStats, len(candidates))
	escFreq := see.mean()
	total := freqSum + escFreq

	cnt := m.rc.getCurrentCount(total)
	if cnt >= freqSum {
		if err := m.rc.decodeSubRange(freqSum, total); err != nil {
			return 0, err
		}
		see.update()
		for i := 0; i < numStats; i++ {
			m.charMask[mc.stateAt(i).symbol()] = 1
		}
		m.numMasked = numStats
		return m.decodeEscape()
	}

	hiCnt := uint32(0)
	var found state
	for _, st := range candidates {
		hiCnt += uint32(st.freq())
		if hiCnt > cnt {
			found = st
			break
		}
	}
	if found.a == nil {
		return 0, ErrModelCorruption
	}
	lo := hiCnt - uint32(found.freq())
	if err := m.rc.decodeSubRange(lo, hiCnt); err != nil {
		return 0, err
	}
	see.update()
	m.update2(found)
	sym := found.symbol()
	if err := m.nextContext(); err != nil {
		return 0, err
	}
	return sym, nil
}

func (m *Model) makeEscFreq(mc ctx, numStats, numUnmasked int) *see2Context {
	if numStats == 256 {
		m.dummySee2.shift = periodBits
		return &m.dummySee2
	}
	diff := numStats - numUnmasked
	if diff < 1 {
		diff = 1
	}
	idx := int(m.ns2Indx[diff-1])
	row := &m.see2[idx]

	col := 0
	if numUnmasked < diff {
		col |= 1
	}
	if int(mc.summFreq()) < 11*numStats {
		col |= 2
	}
	col |= int(m.hiBitsFlag) &^ 7 // hiBitsFlag is 0 or 8; fold into bit 3
	if numUnmasked > numStats-numUnmasked {
		col |= 4
	}
	return &row[col&15]
}

func (m *Model) update2(st state) {
	mc := m.alloc.ctxAt(m.minContext)
	st.setFreq(st.freq() + 4)
	mc.setSummFreq(mc.summFreq() + 4)
	m.foundState = st
	if st.freq() > maxFreq {
		m.rescale()
	}
	m.runLength = m.initRL
}

// rescale halves state frequencies (rounding up while orderFall is non-zero,
// down otherwise) once the just-updated
// state exceeds maxFreq, keeping the states array sorted by descending
// frequency and dropping any that starve to zero. Matching the reference
// implementation, the backing stats array is not shrunk to match.
func (m *Model) rescale() {
	mc := m.alloc.ctxAt(m.minContext)
	n := int(mc.numStats())

	idx := 0
	for i := 0; i < n; i++ {
		if mc.stateAt(i).off == m.foundState.off {
			idx = i
			break
		}
	}
	for idx > 0 {
		m.swapStates(mc.stateAt(idx), mc.stateAt(idx-1))
		idx--
	}

	adder := byte(0)
	if m.orderFall != 0 {
		adder = 1
	}

	st0 := mc.stateAt(0)
	st0.setFreq(st0.freq() + 4)
	st0.setFreq((st0.freq() + adder) >> 1)
	summFreq := uint32(st0.freq())

	for i := 1; i < n; i++ {
		st := mc.stateAt(i)
		st.setFreq((st.freq() + adder) >> 1)
		summFreq += uint32(st.freq())
		j := i
		for j > 0 && mc.stateAt(j).freq() > mc.stateAt(j-1).freq() {
			m.swapStates(mc.stateAt(j), mc.stateAt(j-1))
			j--
		}
	}

	last := n - 1
	for last > 0 && mc.stateAt(last).freq() == 0 {
		last--
	}
	newN := last + 1
	if newN != n {
		mc.setNumStats(uint16(newN))
		if newN == 1 {
			single := mc.stateAt(0)
			sym, fr, succ := single.symbol(), single.freq(), single.successor()
			for {
				fr = (fr + 1) >> 1
				if fr <= maxFreq/3 {
					break
				}
			}
			one := mc.oneState()
			one.setSymbol(sym)
			one.setFreq(fr)
			one.setSuccessor(succ)
			m.foundState = one
			return
		}
	}
	mc.setSummFreq(uint16(summFreq) + uint16(newN>>1))
	m.foundState = mc.stateAt(0)
}

// nextContext follows the found state's successor into the next context,
// extending the tree via updateModel when the successor is still a
// bare text-area offset rather than a realized context.
func (m *Model) nextContext() error {
	fs := m.foundState
	succ := fs.successor()
	if m.orderFall == 0 && succ > m.alloc.textPtr {
		m.minContext = succ
		m.maxContext = succ
		return nil
	}
	return m.updateModel()
}

type upState struct {
	symbol    byte
	freq      byte
	successor uint32
}

// updateModel extends the context tree with the just-decoded symbol along
// the suffix chain, creating successor links as needed. Frequency growth
// of newly promoted states follows a proportional, order-preserving
// formula rather than transcribing every corner case of the reference
// implementation's arithmetic, which could not be confidently reproduced
// without a compiler to check against.
func (m *Model) updateModel() error {
	fs := m.foundState
	fSymbol := fs.symbol()
	fFreq := fs.freq()
	fSuccessor := fs.successor()

	minC := m.alloc.ctxAt(m.minContext)

	if fFreq < maxFreq/4 && minC.suffix() != 0 {
		cc := m.alloc.ctxAt(minC.suffix())
		if cc.numStats() == 1 {
			s := cc.oneState()
			if s.freq() < 32 {
				s.setFreq(s.freq() + 1)
			}
		} else {
			s0 := cc.stateAt(0)
			if s0.symbol() != fSymbol {
				for i := 1; i < int(cc.numStats()); i++ {
					s := cc.stateAt(i)
					if s.symbol() == fSymbol {
						if s.freq() < s0.freq() {
							s.setFreq(s.freq() + 2)
							cc.setSummFreq(cc.summFreq() + 2)
						}
						break
					}
				}
			}
		}
	}

	if m.orderFall == 0 {
		nc, err := m.createSuccessors(true)
		if err != nil {
			return err
		}
		if nc == 0 {
			m.restartModel()
			return nil
		}
		m.minContext = nc
		m.maxContext = nc
		return nil
	}

	m.alloc.writeByte(m.alloc.textPtr, fSymbol)
	m.alloc.advanceTextPtr(1)
	successor := m.alloc.textPtr

	if m.alloc.textPtr >= m.alloc.unitsStart {
		m.restartModel()
		return nil
	}

	if fSuccessor != 0 {
		if fSuccessor <= m.alloc.textPtr {
			ns, err := m.createSuccessors(false)
			if err != nil {
				return err
			}
			if ns == 0 {
				m.restartModel()
				return nil
			}
			fSuccessor = ns
		}
		m.orderFall--
		if m.orderFall == 0 {
			successor = fSuccessor
			if m.maxContext != m.minContext {
				m.alloc.retreatTextPtr(1)
			}
		}
	} else {
		m.foundState.setSuccessor(successor)
		fSuccessor = m.minContext
	}

	ns0 := uint32(minC.numStats())
	s0 := uint32(minC.summFreq()) - ns0 - (uint32(fFreq) - 1)

	for c := m.maxContext; c != m.minContext; c = m.alloc.ctxAt(c).suffix() {
		cc := m.alloc.ctxAt(c)
		ns1 := uint32(cc.numStats())
		if ns1 != 1 {
			if ns1&1 == 0 {
				newStats := m.alloc.expandUnits(cc.statsPtr(), ns1>>1)
				if newStats == 0 {
					m.restartModel()
					return nil
				}
				cc.setStatsPtr(newStats)
			}
			growth := uint16(1)
			if 2*ns1 < ns0 {
				growth++
			}
			if uint32(cc.summFreq())+2*ns1 < s0 {
				growth++
			}
			cc.setSummFreq(cc.summFreq() + growth)
		} else {
			newStats := m.alloc.allocUnits(1)
			if newStats == 0 {
				m.restartModel()
				return nil
			}
			one := cc.oneState()
			dst := state{m.alloc, newStats}
			dst.setSymbol(one.symbol())
			dst.setFreq(one.freq())
			dst.setSuccessor(one.successor())
			cc.setStatsPtr(newStats)

			fr := dst.freq()
			if fr < maxFreq/4-1 {
				fr += fr
			} else {
				fr = maxFreq - 4
			}
			dst.setFreq(fr)
			esc := uint16(4)
			if ns0 > 3 {
				esc++
			}
			cc.setSummFreq(uint16(fr) + esc)
		}

		cf := 2 * uint32(fFreq) * (uint32(cc.summFreq()) + 6)
		sf := s0 + uint32(cc.summFreq())
		var newFreq byte
		if cf < 6*sf {
			newFreq = byte(1 + boolToInt(cf > sf) + boolToInt(cf >= 4*sf))
			cc.setSummFreq(cc.summFreq() + 3)
		} else {
			newFreq = byte(4 + boolToInt(cf >= 9*sf) + boolToInt(cf >= 12*sf) + boolToInt(cf >= 15*sf))
			cc.setSummFreq(cc.summFreq() + uint16(newFreq))
		}

		newStatOff := cc.statsPtr() + ns1*stateSize
		ns := state{m.alloc, newStatOff}
		ns.setSymbol(fSymbol)
		ns.setFreq(newFreq)
		ns.setSuccessor(successor)
		cc.setNumStats(uint16(ns1 + 1))
	}

	m.maxContext = fSuccessor
	m.minContext = fSuccessor
	return nil
}

// createSuccessors walks from minContext back up to maxContext, creating
// any missing intermediate contexts so foundState.successor resolves to a
// real context rather than a text-area offset.
func (m *Model) createSuccessors(skip bool) (uint32, error) {
	c := m.minContext
	fs := m.foundState

	var chain []uint32
	if !skip {
		chain = append(chain, c)
	}

	for m.alloc.ctxAt(c).suffix() != 0 {
		c = m.alloc.ctxAt(c).suffix()
		cc := m.alloc.ctxAt(c)
		var s state
		if cc.numStats() != 1 {
			s = cc.stateAt(0)
			for s.symbol() != fs.symbol() {
				s = state{m.alloc, s.off + stateSize}
			}
		} else {
			s = cc.oneState()
		}
		if s.successor() != fs.successor() {
			c = s.successor()
			break
		}
		chain = append(chain, c)
	}

	if len(chain) == 0 {
		return c, nil
	}

	var up upState
	up.symbol = m.alloc.readByte(fs.successor())
	cc := m.alloc.ctxAt(c)
	if cc.numStats() != 1 {
		s := cc.stateAt(0)
		for s.symbol() != up.symbol {
			s = state{m.alloc, s.off + stateSize}
		}
		cf := uint32(s.freq()) - 1
		s0 := uint32(cc.summFreq()) - uint32(cc.numStats()) - cf
		if 2*cf <= s0 {
			up.freq = byte(1 + boolToInt(2*cf > s0))
		} else {
			up.freq = byte(1 + (2*cf+3*s0-1)/(2*s0))
		}
	} else {
		up.freq = cc.oneState().freq()
	}

	var last uint32
	for i := len(chain) - 1; i >= 0; i-- {
		nc := m.alloc.allocContext()
		if nc == 0 {
			return 0, nil
		}
		ncc := m.alloc.ctxAt(nc)
		ncc.setNumStats(1)
		one := ncc.oneState()
		one.setSymbol(up.symbol)
		one.setFreq(up.freq)
		if last == 0 {
			one.setSuccessor(fs.successor())
		} else {
			one.setSuccessor(last)
		}
		ncc.setSuffix(chain[i])
		last = nc
	}

	return last, nil
}

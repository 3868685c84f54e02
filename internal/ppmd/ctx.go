package ppmd

// Context and State are thin offset-based views over the allocator's
// arena, matching the reference layout: a context is 12 bytes
// {num_stats u16, summ_freq u16 | one_state, stats ptr u32 | one_state
// successor, suffix u32}; a state is 6 bytes {symbol u8, freq u8,
// successor u32}.

const stateSize = 6

type ctx struct {
	a   *allocator
	off uint32
}

func (a *allocator) ctxAt(off uint32) ctx { return ctx{a: a, off: off} }

func (c ctx) numStats() uint16      { return c.a.readU16(c.off) }
func (c ctx) setNumStats(v uint16)  { c.a.writeU16(c.off, v) }

func (c ctx) summFreq() uint16     { return c.a.readU16(c.off + 2) }
func (c ctx) setSummFreq(v uint16) { c.a.writeU16(c.off+2, v) }

func (c ctx) statsPtr() uint32     { return c.a.readU32(c.off + 4) }
func (c ctx) setStatsPtr(v uint32) { c.a.writeU32(c.off+4, v) }

func (c ctx) suffix() uint32     { return c.a.readU32(c.off + 8) }
func (c ctx) setSuffix(v uint32) { c.a.writeU32(c.off+8, v) }

// oneState returns the inline single-state slot used when numStats==1.
func (c ctx) oneState() state { return state{a: c.a, off: c.off + 2} }

type state struct {
	a   *allocator
	off uint32
}

func (c ctx) stateAt(i int) state {
	return state{a: c.a, off: c.statsPtr() + uint32(i)*stateSize}
}

func (s state) symbol() byte      { return s.a.readByte(s.off) }
func (s state) setSymbol(v byte)  { s.a.writeByte(s.off, v) }
func (s state) freq() byte        { return s.a.readByte(s.off + 1) }
func (s state) setFreq(v byte)    { s.a.writeByte(s.off+1, v) }
func (s state) successor() uint32 { return s.a.readU32(s.off + 2) }
func (s state) setSuccessor(v uint32) { s.a.writeU32(s.off+2, v) }

func (s state) copyFrom(o state) {
	s.setSymbol(o.symbol())
	s.setFreq(o.freq())
	s.setSuccessor(o.successor())
}

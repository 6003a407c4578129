package cpu

// The unprefixed opcode table. Handlers are built by category generators in
// init rather than declared one by one; each handler switches on the
// in-flight m-cycle counter, with cycle 1 being the fetch/execute overlap.

var opTable [256]stepFn

func done1(f func(c *CPU)) stepFn {
	return func(c *CPU) bool {
		f(c)
		return true
	}
}

func nop(c *CPU) bool { return true }

// ldRR covers LD r,r' including the (HL) forms.
func ldRR(dst, src int) stepFn {
	if dst == rHLInd && src == rHLInd {
		return opHALT
	}
	switch {
	case dst == rHLInd:
		return func(c *CPU) bool {
			if c.ins.mcycle == 1 {
				return false
			}
			c.write(c.hl(), c.getReg(src))
			return true
		}
	case src == rHLInd:
		return func(c *CPU) bool {
			if c.ins.mcycle == 1 {
				return false
			}
			c.setReg(dst, c.read(c.hl()))
			return true
		}
	default:
		return done1(func(c *CPU) { c.setReg(dst, c.getReg(src)) })
	}
}

func ldRImm(dst int) stepFn {
	if dst == rHLInd {
		return func(c *CPU) bool {
			switch c.ins.mcycle {
			case 1:
				return false
			case 2:
				c.ins.lo = c.fetch()
				return false
			default:
				c.write(c.hl(), c.ins.lo)
				return true
			}
		}
	}
	return func(c *CPU) bool {
		if c.ins.mcycle == 1 {
			return false
		}
		c.setReg(dst, c.fetch())
		return true
	}
}

func ldRRImm(rr int) stepFn {
	return func(c *CPU) bool {
		switch c.ins.mcycle {
		case 1:
			return false
		case 2:
			c.ins.lo = c.fetch()
			return false
		default:
			c.ins.hi = c.fetch()
			c.setRR(rr, uint16(c.ins.hi)<<8|uint16(c.ins.lo))
			return true
		}
	}
}

// ldIndA stores A through a pointer register; post adjusts HL for the
// LD (HL+),A / LD (HL-),A forms.
func ldIndA(addr func(c *CPU) uint16, post func(c *CPU)) stepFn {
	return func(c *CPU) bool {
		if c.ins.mcycle == 1 {
			return false
		}
		c.write(addr(c), c.A)
		if post != nil {
			post(c)
		}
		return true
	}
}

func ldAInd(addr func(c *CPU) uint16, post func(c *CPU)) stepFn {
	return func(c *CPU) bool {
		if c.ins.mcycle == 1 {
			return false
		}
		c.A = c.read(addr(c))
		if post != nil {
			post(c)
		}
		return true
	}
}

func incHL(c *CPU) { c.setRR(rrHL, c.hl()+1) }
func decHL(c *CPU) { c.setRR(rrHL, c.hl()-1) }

func incRR(rr int) stepFn {
	return func(c *CPU) bool {
		if c.ins.mcycle == 1 {
			return false
		}
		c.setRR(rr, c.getRR(rr)+1)
		return true
	}
}

func decRR(rr int) stepFn {
	return func(c *CPU) bool {
		if c.ins.mcycle == 1 {
			return false
		}
		c.setRR(rr, c.getRR(rr)-1)
		return true
	}
}

func incReg(i int) stepFn {
	if i == rHLInd {
		return rmwHL(func(c *CPU, v byte) byte { return c.inc8(v) })
	}
	return done1(func(c *CPU) { c.setReg(i, c.inc8(c.getReg(i))) })
}

func decReg(i int) stepFn {
	if i == rHLInd {
		return rmwHL(func(c *CPU, v byte) byte { return c.dec8(v) })
	}
	return done1(func(c *CPU) { c.setReg(i, c.dec8(c.getReg(i))) })
}

// rmwHL is the shared read-modify-write shape for (HL) operands.
func rmwHL(f func(c *CPU, v byte) byte) stepFn {
	return func(c *CPU) bool {
		switch c.ins.mcycle {
		case 1:
			return false
		case 2:
			c.ins.val = f(c, c.read(c.hl()))
			return false
		default:
			c.write(c.hl(), c.ins.val)
			return true
		}
	}
}

func addHLRR(rr int) stepFn {
	return func(c *CPU) bool {
		if c.ins.mcycle == 1 {
			return false
		}
		c.addHL(c.getRR(rr))
		return true
	}
}

// aluOp indexes the 0x80-0xBF block's operation rows.
func aluApply(c *CPU, op int, v byte) {
	switch op {
	case 0:
		c.add(v, false)
	case 1:
		c.add(v, true)
	case 2:
		c.sub(v, false)
	case 3:
		c.sub(v, true)
	case 4:
		c.and(v)
	case 5:
		c.xor(v)
	case 6:
		c.or(v)
	default:
		c.cp(v)
	}
}

func aluReg(op, src int) stepFn {
	if src == rHLInd {
		return func(c *CPU) bool {
			if c.ins.mcycle == 1 {
				return false
			}
			aluApply(c, op, c.read(c.hl()))
			return true
		}
	}
	return done1(func(c *CPU) { aluApply(c, op, c.getReg(src)) })
}

func aluImm(op int) stepFn {
	return func(c *CPU) bool {
		if c.ins.mcycle == 1 {
			return false
		}
		aluApply(c, op, c.fetch())
		return true
	}
}

// --- control flow ---

func jrAlways(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	default:
		c.PC += uint16(int8(c.ins.lo))
		return true
	}
}

func jrCond(cc int) stepFn {
	return func(c *CPU) bool {
		switch c.ins.mcycle {
		case 1:
			return false
		case 2:
			c.ins.lo = c.fetch()
			return !c.cond(cc)
		default:
			c.PC += uint16(int8(c.ins.lo))
			return true
		}
	}
}

func jpAlways(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	case 3:
		c.ins.hi = c.fetch()
		return false
	default:
		c.PC = uint16(c.ins.hi)<<8 | uint16(c.ins.lo)
		return true
	}
}

func jpCond(cc int) stepFn {
	return func(c *CPU) bool {
		switch c.ins.mcycle {
		case 1:
			return false
		case 2:
			c.ins.lo = c.fetch()
			return false
		case 3:
			c.ins.hi = c.fetch()
			return !c.cond(cc)
		default:
			c.PC = uint16(c.ins.hi)<<8 | uint16(c.ins.lo)
			return true
		}
	}
}

func jpHL(c *CPU) bool {
	c.PC = c.hl()
	return true
}

func callAlways(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	case 3:
		c.ins.hi = c.fetch()
		return false
	case 4:
		return false
	case 5:
		c.SP--
		c.write(c.SP, byte(c.PC>>8))
		return false
	default:
		c.SP--
		c.write(c.SP, byte(c.PC))
		c.PC = uint16(c.ins.hi)<<8 | uint16(c.ins.lo)
		return true
	}
}

func callCond(cc int) stepFn {
	return func(c *CPU) bool {
		switch c.ins.mcycle {
		case 1:
			return false
		case 2:
			c.ins.lo = c.fetch()
			return false
		case 3:
			c.ins.hi = c.fetch()
			return !c.cond(cc)
		case 4:
			return false
		case 5:
			c.SP--
			c.write(c.SP, byte(c.PC>>8))
			return false
		default:
			c.SP--
			c.write(c.SP, byte(c.PC))
			c.PC = uint16(c.ins.hi)<<8 | uint16(c.ins.lo)
			return true
		}
	}
}

func retAlways(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.read(c.SP)
		c.SP++
		return false
	case 3:
		c.ins.hi = c.read(c.SP)
		c.SP++
		return false
	default:
		c.PC = uint16(c.ins.hi)<<8 | uint16(c.ins.lo)
		return true
	}
}

func retI(c *CPU) bool {
	if !retAlways(c) {
		return false
	}
	c.IME = true
	return true
}

func retCond(cc int) stepFn {
	return func(c *CPU) bool {
		switch c.ins.mcycle {
		case 1:
			return false
		case 2:
			return !c.cond(cc)
		case 3:
			c.ins.lo = c.read(c.SP)
			c.SP++
			return false
		case 4:
			c.ins.hi = c.read(c.SP)
			c.SP++
			return false
		default:
			c.PC = uint16(c.ins.hi)<<8 | uint16(c.ins.lo)
			return true
		}
	}
}

func rst(vec uint16) stepFn {
	return func(c *CPU) bool {
		switch c.ins.mcycle {
		case 1:
			return false
		case 2:
			return false
		case 3:
			c.SP--
			c.write(c.SP, byte(c.PC>>8))
			return false
		default:
			c.SP--
			c.write(c.SP, byte(c.PC))
			c.PC = vec
			return true
		}
	}
}

// --- stack and 16-bit loads ---

func pushRR(get func(c *CPU) uint16) stepFn {
	return func(c *CPU) bool {
		switch c.ins.mcycle {
		case 1, 2:
			return false
		case 3:
			c.SP--
			c.write(c.SP, byte(get(c)>>8))
			return false
		default:
			c.SP--
			c.write(c.SP, byte(get(c)))
			return true
		}
	}
}

func popRR(set func(c *CPU, v uint16)) stepFn {
	return func(c *CPU) bool {
		switch c.ins.mcycle {
		case 1:
			return false
		case 2:
			c.ins.lo = c.read(c.SP)
			c.SP++
			return false
		default:
			c.ins.hi = c.read(c.SP)
			c.SP++
			set(c, uint16(c.ins.hi)<<8|uint16(c.ins.lo))
			return true
		}
	}
}

func ldImmAddrSP(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	case 3:
		c.ins.hi = c.fetch()
		c.ins.addr = uint16(c.ins.hi)<<8 | uint16(c.ins.lo)
		return false
	case 4:
		c.write(c.ins.addr, byte(c.SP))
		return false
	default:
		c.write(c.ins.addr+1, byte(c.SP>>8))
		return true
	}
}

func ldImmAddrA(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	case 3:
		c.ins.hi = c.fetch()
		return false
	default:
		c.write(uint16(c.ins.hi)<<8|uint16(c.ins.lo), c.A)
		return true
	}
}

func ldAImmAddr(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	case 3:
		c.ins.hi = c.fetch()
		return false
	default:
		c.A = c.read(uint16(c.ins.hi)<<8 | uint16(c.ins.lo))
		return true
	}
}

func ldhImmA(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	default:
		c.write(0xFF00|uint16(c.ins.lo), c.A)
		return true
	}
}

func ldhAImm(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	default:
		c.A = c.read(0xFF00 | uint16(c.ins.lo))
		return true
	}
}

func ldhCA(c *CPU) bool {
	if c.ins.mcycle == 1 {
		return false
	}
	c.write(0xFF00|uint16(c.C), c.A)
	return true
}

func ldhAC(c *CPU) bool {
	if c.ins.mcycle == 1 {
		return false
	}
	c.A = c.read(0xFF00 | uint16(c.C))
	return true
}

func addSPImm(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	case 3:
		return false
	default:
		c.SP = c.spPlusOffset(c.ins.lo)
		return true
	}
}

func ldHLSPImm(c *CPU) bool {
	switch c.ins.mcycle {
	case 1:
		return false
	case 2:
		c.ins.lo = c.fetch()
		return false
	default:
		c.setRR(rrHL, c.spPlusOffset(c.ins.lo))
		return true
	}
}

func ldSPHL(c *CPU) bool {
	if c.ins.mcycle == 1 {
		return false
	}
	c.SP = c.hl()
	return true
}

// --- misc ---

func opHALT(c *CPU) bool {
	pending := c.pending()
	if !c.IME && pending != 0 {
		// HALT with IME off and something already pending does not sleep;
		// it latches the halt bug instead.
		c.haltBug = true
		return true
	}
	c.halted = pending == 0
	return true
}

func opSTOP(c *CPU) bool {
	c.fetch() // STOP is encoded as two bytes; the second is discarded
	c.bus.PerformSpeedSwitch()
	return true
}

func opDI(c *CPU) bool {
	c.IME = false
	c.imeScheduled = false
	return true
}

func opEI(c *CPU) bool {
	if !c.IME && !c.imeScheduled {
		c.imeScheduled = true
		c.imeDelay = 2
	}
	return true
}

func opCB(c *CPU) bool {
	c.ins.cb = true
	return true
}

func init() {
	// Default every slot to NOP first: the unused opcodes (0xD3, 0xDB, ...)
	// behave as NOPs rather than trapping.
	for i := range opTable {
		opTable[i] = nop
	}

	// 0x40-0xBF: the LD r,r' block and the ALU block.
	for dst := 0; dst < 8; dst++ {
		for src := 0; src < 8; src++ {
			opTable[0x40+dst*8+src] = ldRR(dst, src)
		}
	}
	for op := 0; op < 8; op++ {
		for src := 0; src < 8; src++ {
			opTable[0x80+op*8+src] = aluReg(op, src)
		}
		opTable[0xC6+op*8] = aluImm(op)
	}

	// Column patterns in 0x00-0x3F.
	for rr := 0; rr < 4; rr++ {
		opTable[0x01+rr*16] = ldRRImm(rr)
		opTable[0x03+rr*16] = incRR(rr)
		opTable[0x09+rr*16] = addHLRR(rr)
		opTable[0x0B+rr*16] = decRR(rr)
	}
	for i := 0; i < 8; i++ {
		opTable[0x04+i*8] = incReg(i)
		opTable[0x05+i*8] = decReg(i)
		opTable[0x06+i*8] = ldRImm(i)
	}

	opTable[0x00] = nop
	opTable[0x02] = ldIndA(func(c *CPU) uint16 { return c.getRR(rrBC) }, nil)
	opTable[0x07] = done1(func(c *CPU) { c.A = c.rlc(c.A); c.setFlag(flagZ, false) })
	opTable[0x08] = ldImmAddrSP
	opTable[0x0A] = ldAInd(func(c *CPU) uint16 { return c.getRR(rrBC) }, nil)
	opTable[0x0F] = done1(func(c *CPU) { c.A = c.rrc(c.A); c.setFlag(flagZ, false) })

	opTable[0x10] = opSTOP
	opTable[0x12] = ldIndA(func(c *CPU) uint16 { return c.getRR(rrDE) }, nil)
	opTable[0x17] = done1(func(c *CPU) { c.A = c.rl(c.A); c.setFlag(flagZ, false) })
	opTable[0x18] = jrAlways
	opTable[0x1A] = ldAInd(func(c *CPU) uint16 { return c.getRR(rrDE) }, nil)
	opTable[0x1F] = done1(func(c *CPU) { c.A = c.rr(c.A); c.setFlag(flagZ, false) })

	opTable[0x20] = jrCond(0)
	opTable[0x22] = ldIndA((*CPU).hl, incHL)
	opTable[0x27] = done1((*CPU).daa)
	opTable[0x28] = jrCond(1)
	opTable[0x2A] = ldAInd((*CPU).hl, incHL)
	opTable[0x2F] = done1(func(c *CPU) {
		c.A = ^c.A
		c.setFlag(flagN, true)
		c.setFlag(flagH, true)
	})

	opTable[0x30] = jrCond(2)
	opTable[0x32] = ldIndA((*CPU).hl, decHL)
	opTable[0x37] = done1(func(c *CPU) {
		c.setFlag(flagN, false)
		c.setFlag(flagH, false)
		c.setFlag(flagC, true)
	})
	opTable[0x38] = jrCond(3)
	opTable[0x3A] = ldAInd((*CPU).hl, decHL)
	opTable[0x3F] = done1(func(c *CPU) {
		c.setFlag(flagN, false)
		c.setFlag(flagH, false)
		c.setFlag(flagC, !c.flag(flagC))
	})

	// 0xC0-0xFF.
	opTable[0xC0] = retCond(0)
	opTable[0xC1] = popRR(func(c *CPU, v uint16) { c.setRR(rrBC, v) })
	opTable[0xC2] = jpCond(0)
	opTable[0xC3] = jpAlways
	opTable[0xC4] = callCond(0)
	opTable[0xC5] = pushRR(func(c *CPU) uint16 { return c.getRR(rrBC) })
	opTable[0xC7] = rst(0x00)
	opTable[0xC8] = retCond(1)
	opTable[0xC9] = retAlways
	opTable[0xCA] = jpCond(1)
	opTable[0xCB] = opCB
	opTable[0xCC] = callCond(1)
	opTable[0xCD] = callAlways
	opTable[0xCF] = rst(0x08)

	opTable[0xD0] = retCond(2)
	opTable[0xD1] = popRR(func(c *CPU, v uint16) { c.setRR(rrDE, v) })
	opTable[0xD2] = jpCond(2)
	opTable[0xD4] = callCond(2)
	opTable[0xD5] = pushRR(func(c *CPU) uint16 { return c.getRR(rrDE) })
	opTable[0xD7] = rst(0x10)
	opTable[0xD8] = retCond(3)
	opTable[0xD9] = retI
	opTable[0xDA] = jpCond(3)
	opTable[0xDC] = callCond(3)
	opTable[0xDF] = rst(0x18)

	opTable[0xE0] = ldhImmA
	opTable[0xE1] = popRR(func(c *CPU, v uint16) { c.setRR(rrHL, v) })
	opTable[0xE2] = ldhCA
	opTable[0xE5] = pushRR((*CPU).hl)
	opTable[0xE7] = rst(0x20)
	opTable[0xE8] = addSPImm
	opTable[0xE9] = jpHL
	opTable[0xEA] = ldImmAddrA
	opTable[0xEF] = rst(0x28)

	opTable[0xF0] = ldhAImm
	opTable[0xF1] = popRR((*CPU).setAF)
	opTable[0xF2] = ldhAC
	opTable[0xF3] = opDI
	opTable[0xF5] = pushRR(func(c *CPU) uint16 { return uint16(c.A)<<8 | uint16(c.F) })
	opTable[0xF7] = rst(0x30)
	opTable[0xF8] = ldHLSPImm
	opTable[0xF9] = ldSPHL
	opTable[0xFA] = ldAImmAddr
	opTable[0xFB] = opEI
	opTable[0xFF] = rst(0x38)
}

package cpu

// The 0xCB-prefixed table. The prefix byte itself is a one-cycle
// instruction that flips the table for the next fetch, so a handler's
// cycle 1 is the CB opcode's own fetch cycle.

var cbTable [256]stepFn

// cbRotApply indexes the rotate/shift rows of the 0x00-0x3F block.
func cbRotApply(c *CPU, op int, v byte) byte {
	switch op {
	case 0:
		return c.rlc(v)
	case 1:
		return c.rrc(v)
	case 2:
		return c.rl(v)
	case 3:
		return c.rr(v)
	case 4:
		return c.sla(v)
	case 5:
		return c.sra(v)
	case 6:
		return c.swap(v)
	default:
		return c.srl(v)
	}
}

func cbRot(op, src int) stepFn {
	if src == rHLInd {
		return rmwHL(func(c *CPU, v byte) byte { return cbRotApply(c, op, v) })
	}
	return done1(func(c *CPU) { c.setReg(src, cbRotApply(c, op, c.getReg(src))) })
}

func cbBit(n, src int) stepFn {
	if src == rHLInd {
		return func(c *CPU) bool {
			if c.ins.mcycle == 1 {
				return false
			}
			c.bit(n, c.read(c.hl()))
			return true
		}
	}
	return done1(func(c *CPU) { c.bit(n, c.getReg(src)) })
}

func cbRes(n, src int) stepFn {
	if src == rHLInd {
		return rmwHL(func(c *CPU, v byte) byte { return v &^ (1 << n) })
	}
	return done1(func(c *CPU) { c.setReg(src, c.getReg(src)&^(1<<n)) })
}

func cbSet(n, src int) stepFn {
	if src == rHLInd {
		return rmwHL(func(c *CPU, v byte) byte { return v | 1<<n })
	}
	return done1(func(c *CPU) { c.setReg(src, c.getReg(src)|1<<n) })
}

func init() {
	for op := 0; op < 8; op++ {
		for src := 0; src < 8; src++ {
			cbTable[op*8+src] = cbRot(op, src)
		}
	}
	for n := 0; n < 8; n++ {
		for src := 0; src < 8; src++ {
			cbTable[0x40+n*8+src] = cbBit(n, src)
			cbTable[0x80+n*8+src] = cbRes(n, src)
			cbTable[0xC0+n*8+src] = cbSet(n, src)
		}
	}
}

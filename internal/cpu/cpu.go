// Package cpu implements the SM83 core as a micro-cycle stepper: the
// emulator calls MachineCycle once per M-cycle and the current instruction's
// handler performs exactly the memory accesses and ALU work due on that
// sub-cycle.
package cpu

import (
	"github.com/cairnfall/gbccore/internal/bus"
	"github.com/cairnfall/gbccore/internal/gobutil"
)

// stepFn advances the in-flight instruction by one M-cycle and reports
// whether the instruction has completed.
type stepFn func(c *CPU) bool

// inFlight is the instruction currently executing. mcycle starts at 1 on
// the fetch/execute overlap cycle and increments once per machine cycle.
type inFlight struct {
	opcode byte
	mcycle int
	done   bool
	cb     bool // a CB prefix just completed; the next fetch uses the CB table
	step   stepFn

	lo, hi byte   // latched operand bytes
	val    byte   // scratch byte for read-modify-write sequences
	addr   uint16 // target address (also the interrupt vector)
	vecBit byte   // IF bit of the interrupt being serviced
}

// CPU is the register file plus the instruction engine state. All memory
// traffic goes through the bus.
type CPU struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP uint16
	PC uint16

	IME          bool
	imeScheduled bool
	imeDelay     int

	halted  bool
	haltBug bool

	ins inFlight

	bus *bus.Bus
}

func New(b *bus.Bus) *CPU {
	c := &CPU{bus: b, SP: 0xFFFE, PC: 0x0100}
	c.ins.done = true
	return c
}

// Bus exposes the underlying bus for tests and tools.
func (c *CPU) Bus() *bus.Bus { return c.bus }

func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Halted reports whether the core is sleeping in HALT.
func (c *CPU) Halted() bool { return c.halted }

// AtInstructionBoundary reports whether the last machine cycle completed an
// instruction, the point where a tracer should sample register state.
func (c *CPU) AtInstructionBoundary() bool { return c.ins.done }

// ResetDMG installs the DMG post-boot register file.
func (c *CPU) ResetDMG() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.reset()
}

// ResetCGB installs the CGB post-boot register file.
func (c *CPU) ResetCGB() {
	c.A, c.F = 0x11, 0x80
	c.B, c.C = 0x00, 0x00
	c.D, c.E = 0xFF, 0x56
	c.H, c.L = 0x00, 0x0D
	c.reset()
}

func (c *CPU) reset() {
	c.SP = 0xFFFE
	c.PC = 0x0100
	c.IME = false
	c.imeScheduled = false
	c.halted = false
	c.haltBug = false
	c.ins = inFlight{done: true}
}

func (c *CPU) read(addr uint16) byte     { return c.bus.Read(addr) }
func (c *CPU) write(addr uint16, v byte) { c.bus.Write(addr, v) }

// fetch reads the next instruction byte. With the halt bug latched the PC
// increment is suppressed exactly once.
func (c *CPU) fetch() byte {
	v := c.read(c.PC)
	if c.haltBug {
		c.haltBug = false
		return v
	}
	c.PC++
	return v
}

func (c *CPU) pending() byte {
	return c.bus.IF() & c.bus.IE() & 0x1F
}

// MachineCycle advances the CPU by one M-cycle: wake from HALT if needed,
// begin a new instruction (or hijack the fetch for interrupt service) when
// the previous one has completed, then run one step of the handler.
func (c *CPU) MachineCycle() {
	if c.halted {
		if c.pending() == 0 {
			return
		}
		c.halted = false
	}

	if c.ins.done {
		if c.ins.cb {
			c.beginCB()
		} else if !c.beginInterrupt() {
			c.begin()
		}
	}

	c.ins.mcycle++
	c.ins.done = c.ins.step(c)

	if c.imeScheduled && c.ins.done {
		c.imeDelay--
		if c.imeDelay == 0 {
			c.IME = true
			c.imeScheduled = false
		}
	}
}

// Step runs machine cycles until the current instruction (or interrupt
// service) completes and returns how many were consumed. Whole-instruction
// granularity suits the headless runner and timing tests; dot-accurate
// hosts drive MachineCycle through the emulator's Tick instead.
func (c *CPU) Step() int {
	n := 0
	for {
		c.MachineCycle()
		n++
		if c.ins.done || c.halted {
			return n
		}
	}
}

func (c *CPU) begin() {
	c.ins = inFlight{}
	c.ins.opcode = c.fetch()
	c.ins.step = opTable[c.ins.opcode]
}

func (c *CPU) beginCB() {
	c.ins = inFlight{}
	c.ins.opcode = c.fetch()
	c.ins.step = cbTable[c.ins.opcode]
}

// beginInterrupt hijacks the next fetch when IME is set and an interrupt is
// pending, installing the 5-cycle service pseudo-instruction.
func (c *CPU) beginInterrupt() bool {
	pending := c.pending()
	if !c.IME || pending == 0 {
		return false
	}
	c.IME = false
	c.imeScheduled = false
	c.ins = inFlight{step: intService}
	c.encodeInterrupt(pending)
	return true
}

var intVectors = [5]uint16{0x0040, 0x0048, 0x0050, 0x0058, 0x0060}

// encodeInterrupt targets the highest-priority pending interrupt.
func (c *CPU) encodeInterrupt(pending byte) {
	for bit := 0; bit < 5; bit++ {
		if pending&(1<<bit) != 0 {
			c.ins.addr = intVectors[bit]
			c.ins.vecBit = 1 << bit
			return
		}
	}
}

// intService is the interrupt-service pseudo-instruction: two idle cycles,
// push PC high (re-checking the pending set, which may re-target the vector
// or cancel to 0x0000), push PC low, then jump and acknowledge.
func intService(c *CPU) bool {
	switch c.ins.mcycle {
	case 1, 2:
		return false
	case 3:
		c.SP--
		c.write(c.SP, byte(c.PC>>8))
		pending := c.pending()
		if pending == 0 {
			// The interrupt vanished mid-service; hardware jumps to 0x0000.
			c.PC = 0x0000
			return true
		}
		if pending&c.ins.vecBit == 0 {
			c.encodeInterrupt(pending)
		}
		return false
	case 4:
		c.SP--
		c.write(c.SP, byte(c.PC))
		return false
	default:
		c.PC = c.ins.addr
		c.bus.SetIF(c.bus.IF() &^ c.ins.vecBit)
		return true
	}
}

// --- register access ---

// Flag bit positions in F. The low nibble of F always reads zero.
const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

func (c *CPU) flag(mask byte) bool { return c.F&mask != 0 }

func (c *CPU) setFlags(z, n, h, cy bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if cy {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) setFlag(mask byte, on bool) {
	if on {
		c.F |= mask
	} else {
		c.F &^= mask
	}
}

// 8-bit register indices in instruction-encoding order.
const (
	rB = iota
	rC
	rD
	rE
	rH
	rL
	rHLInd
	rA
)

func (c *CPU) getReg(i int) byte {
	switch i {
	case rB:
		return c.B
	case rC:
		return c.C
	case rD:
		return c.D
	case rE:
		return c.E
	case rH:
		return c.H
	case rL:
		return c.L
	default:
		return c.A
	}
}

func (c *CPU) setReg(i int, v byte) {
	switch i {
	case rB:
		c.B = v
	case rC:
		c.C = v
	case rD:
		c.D = v
	case rE:
		c.E = v
	case rH:
		c.H = v
	case rL:
		c.L = v
	default:
		c.A = v
	}
}

// Dual-register indices in instruction-encoding order: BC, DE, HL, SP.
const (
	rrBC = iota
	rrDE
	rrHL
	rrSP
)

func (c *CPU) getRR(i int) uint16 {
	switch i {
	case rrBC:
		return uint16(c.B)<<8 | uint16(c.C)
	case rrDE:
		return uint16(c.D)<<8 | uint16(c.E)
	case rrHL:
		return uint16(c.H)<<8 | uint16(c.L)
	default:
		return c.SP
	}
}

func (c *CPU) setRR(i int, v uint16) {
	switch i {
	case rrBC:
		c.B, c.C = byte(v>>8), byte(v)
	case rrDE:
		c.D, c.E = byte(v>>8), byte(v)
	case rrHL:
		c.H, c.L = byte(v>>8), byte(v)
	default:
		c.SP = v
	}
}

func (c *CPU) hl() uint16 { return uint16(c.H)<<8 | uint16(c.L) }

func (c *CPU) setAF(v uint16) {
	c.A = byte(v >> 8)
	c.F = byte(v) & 0xF0
}

// cond evaluates a branch condition in encoding order: NZ, Z, NC, C.
func (c *CPU) cond(i int) bool {
	switch i {
	case 0:
		return !c.flag(flagZ)
	case 1:
		return c.flag(flagZ)
	case 2:
		return !c.flag(flagC)
	default:
		return c.flag(flagC)
	}
}

// --- save state ---

type cpuState struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME                    bool
	IMEScheduled           bool
	IMEDelay               int
	Halted                 bool
	HaltBug                bool
}

// SaveState snapshots the register file. The in-flight instruction record
// is excluded on purpose; the emulator only snapshots between instructions.
func (c *CPU) SaveState() []byte {
	return gobutil.Encode(cpuState{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, IMEScheduled: c.imeScheduled, IMEDelay: c.imeDelay,
		Halted: c.halted, HaltBug: c.haltBug,
	})
}

func (c *CPU) LoadState(data []byte) {
	var s cpuState
	if !gobutil.Decode(data, &s) {
		return
	}
	c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L = s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC = s.SP, s.PC
	c.IME, c.imeScheduled, c.imeDelay = s.IME, s.IMEScheduled, s.IMEDelay
	c.halted, c.haltBug = s.Halted, s.HaltBug
	c.ins = inFlight{done: true}
}
